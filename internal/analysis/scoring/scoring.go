// Package scoring turns provider metric rows into comparable 0-100 scores.
//
// Two schemes share one reliability factor r = min(1, sqrt(n/n0)):
// a population z-score (50 + 10*z*r) and a goal-distance score shrunk
// toward 50 by r. Undefined inputs stay undefined; they are never replaced
// by a default.
package scoring

import (
	"math"

	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

const (
	neutral    = 50.0
	zScale     = 10.0
	minScore   = 0.0
	maxScore   = 100.0
	stdEpsilon = 1e-12
)

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Reliability is min(1, sqrt(n/n0)); zero for empty samples.
func Reliability(n int, n0 float64) float64 {
	if n <= 0 || n0 <= 0 {
		return 0
	}
	return math.Min(1, math.Sqrt(float64(n)/n0))
}

// Population is the mean and population standard deviation of the defined
// values of one metric across the scored providers.
type Population struct {
	Mean  float64
	Std   float64
	Count int
}

func NewPopulation(values []models.NullFloat) Population {
	var sum float64
	var n int
	for _, v := range values {
		if v.Valid {
			sum += v.Value
			n++
		}
	}
	if n == 0 {
		return Population{}
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range values {
		if v.Valid {
			ss += (v.Value - mean) * (v.Value - mean)
		}
	}
	return Population{Mean: mean, Std: math.Sqrt(ss / float64(n)), Count: n}
}

// degenerate reports zero variance, allowing for rounding in the mean.
func (p Population) degenerate() bool {
	return p.Count == 0 || p.Std <= stdEpsilon*math.Max(1, math.Abs(p.Mean))
}

// ZScore is clamp(50 + 10*z*r). Lower-is-better metrics negate z. The
// score is undefined for undefined values and zero-variance populations.
func ZScore(v models.NullFloat, pop Population, n int, n0 float64, dir registry.Direction) models.NullFloat {
	if !v.Valid || pop.degenerate() {
		return models.Null()
	}
	z := (v.Value - pop.Mean) / pop.Std
	if dir == registry.LowerIsBetter {
		z = -z
	}
	return models.Some(clamp(neutral+zScale*z*Reliability(n, n0), minScore, maxScore))
}

// GoalRaw interpolates v from the metric's zero point (0) to its target
// (100), clamped.
func GoalRaw(v float64, m registry.Metric) float64 {
	worst := m.Worst()
	return clamp((v-worst)/(m.Goal.Target-worst)*maxScore, minScore, maxScore)
}

// GoalScore shrinks the raw goal score toward 50 by the reliability factor.
func GoalScore(v models.NullFloat, m registry.Metric, n int, n0 float64) models.NullFloat {
	if !v.Valid {
		return models.Null()
	}
	raw := GoalRaw(v.Value, m)
	return models.Some(neutral + (raw-neutral)*Reliability(n, n0))
}

// Mean averages the defined scores; undefined if none are defined.
func Mean(scores []models.NullFloat) models.NullFloat {
	var sum float64
	var n int
	for _, s := range scores {
		if s.Valid {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return models.Null()
	}
	return models.Some(sum / float64(n))
}

// Overall is the weighted mean of the defined blocks with weights
// renormalized over those blocks.
func Overall(blocks []models.BlockScore) models.NullFloat {
	var sum, weight float64
	for _, b := range blocks {
		if !b.Score.Valid || b.Weight <= 0 {
			continue
		}
		sum += b.Score.Value * b.Weight
		weight += b.Weight
	}
	if weight == 0 {
		return models.Null()
	}
	return models.Some(sum / weight)
}
