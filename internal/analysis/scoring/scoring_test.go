package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

func ptr(v float64) *float64 { return &v }

var churnMetric = registry.Metric{
	ID:        models.MetricChurnRate,
	Direction: registry.LowerIsBetter,
	Family:    "orders",
	Goal:      registry.Goal{Target: 0.30, Ceiling: ptr(0.80)},
}

var regularMetric = registry.Metric{
	ID:        models.MetricRegularRate,
	Direction: registry.HigherIsBetter,
	Family:    "orders",
	Goal:      registry.Goal{Target: 0.20, Floor: ptr(0.0)},
}

// ==========================
// Reliability
// ==========================

func TestReliability(t *testing.T) {
	tests := []struct {
		n    int
		n0   float64
		want float64
	}{
		{n: 0, n0: 30, want: 0},
		{n: 30, n0: 30, want: 1},
		{n: 300, n0: 30, want: 1},
		{n: 3, n0: 30, want: math.Sqrt(0.1)},
		{n: 3, n0: 6, want: math.Sqrt(0.5)},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Reliability(tt.n, tt.n0), 1e-12)
	}
}

// ==========================
// Z-score
// ==========================

func TestZScore(t *testing.T) {
	pop := NewPopulation([]models.NullFloat{models.Some(0.2), models.Some(0.4), models.Some(0.6)})
	require.InDelta(t, 0.4, pop.Mean, 1e-12)

	higher := ZScore(models.Some(0.6), pop, 30, 30, registry.HigherIsBetter)
	lower := ZScore(models.Some(0.6), pop, 30, 30, registry.LowerIsBetter)
	require.True(t, higher.Valid)
	assert.Greater(t, higher.Value, 50.0)
	assert.InDelta(t, 100-higher.Value, lower.Value, 1e-9, "negation mirrors around 50")

	shrunk := ZScore(models.Some(0.6), pop, 3, 30, registry.HigherIsBetter)
	assert.Less(t, shrunk.Value, higher.Value)
	assert.Greater(t, shrunk.Value, 50.0)
}

func TestZScore_UndefinedCases(t *testing.T) {
	flat := NewPopulation([]models.NullFloat{models.Some(0.1), models.Some(0.1), models.Some(0.1)})
	assert.False(t, ZScore(models.Some(0.1), flat, 10, 30, registry.HigherIsBetter).Valid, "zero variance")

	pop := NewPopulation([]models.NullFloat{models.Some(0.1), models.Some(0.3)})
	assert.False(t, ZScore(models.Null(), pop, 10, 30, registry.HigherIsBetter).Valid, "undefined value")

	empty := NewPopulation([]models.NullFloat{models.Null()})
	assert.False(t, ZScore(models.Some(0.2), empty, 10, 30, registry.HigherIsBetter).Valid)
}

func TestZScore_AlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		values := make([]models.NullFloat, 5)
		for j := range values {
			values[j] = models.Some(rng.NormFloat64() * 10)
		}
		pop := NewPopulation(values)
		v := models.Some(rng.NormFloat64() * 1000)
		s := ZScore(v, pop, rng.Intn(500), 30, registry.HigherIsBetter)
		if s.Valid {
			assert.GreaterOrEqual(t, s.Value, 0.0)
			assert.LessOrEqual(t, s.Value, 100.0)
		}
	}
}

// ==========================
// Goal distance
// ==========================

func TestGoalRaw(t *testing.T) {
	assert.InDelta(t, 100, GoalRaw(0.30, churnMetric), 1e-9)
	assert.InDelta(t, 0, GoalRaw(0.80, churnMetric), 1e-9)
	assert.InDelta(t, 60, GoalRaw(0.50, churnMetric), 1e-9)
	assert.InDelta(t, 100, GoalRaw(0.05, churnMetric), 1e-9, "clamped above target")
	assert.InDelta(t, 0, GoalRaw(0.95, churnMetric), 1e-9, "clamped below ceiling")

	assert.InDelta(t, 50, GoalRaw(0.10, regularMetric), 1e-9)
	assert.InDelta(t, 100, GoalRaw(0.50, regularMetric), 1e-9)
}

func TestGoalScore_SampleSizeShrinksTowardNeutral(t *testing.T) {
	small := GoalScore(models.Some(0.5), churnMetric, 3, 30)
	large := GoalScore(models.Some(0.5), churnMetric, 300, 30)

	require.True(t, small.Valid)
	require.True(t, large.Valid)
	assert.NotEqual(t, small.Value, large.Value)
	assert.InDelta(t, 60, large.Value, 1e-9)
	assert.InDelta(t, 50+10*math.Sqrt(0.1), small.Value, 1e-9)
	assert.Less(t, math.Abs(small.Value-50), math.Abs(large.Value-50))
}

func TestGoalScore_AlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		v := models.Some(rng.Float64()*4 - 2)
		s := GoalScore(v, churnMetric, rng.Intn(1000), 30)
		require.True(t, s.Valid)
		assert.GreaterOrEqual(t, s.Value, 0.0)
		assert.LessOrEqual(t, s.Value, 100.0)
	}
}

// ==========================
// Blocks and overall
// ==========================

func TestMean_SkipsUndefined(t *testing.T) {
	assert.InDelta(t, 70, Mean([]models.NullFloat{models.Some(60), models.Null(), models.Some(80)}).Value, 1e-9)
	assert.False(t, Mean([]models.NullFloat{models.Null()}).Valid)
}

func TestOverall_RenormalizesWeights(t *testing.T) {
	blocks := []models.BlockScore{
		{Block: "a", Weight: 0.5, Score: models.Some(80)},
		{Block: "b", Weight: 0.3, Score: models.Null()},
		{Block: "c", Weight: 0.2, Score: models.Some(30)},
	}
	got := Overall(blocks)
	require.True(t, got.Valid)
	assert.InDelta(t, (80*0.5+30*0.2)/0.7, got.Value, 1e-9)

	assert.False(t, Overall([]models.BlockScore{{Weight: 1, Score: models.Null()}}).Valid)
}

// ==========================
// Scorer
// ==========================

func TestScorer_ChurnScenario(t *testing.T) {
	cat, err := registry.Default()
	require.NoError(t, err)
	s, err := NewScorer(cat, map[string]float64{"orders": 30, "months": 6})
	require.NoError(t, err)

	rows := []models.MetricRow{
		{Dimension: models.Dimension{Provider: "small"}, NewCustomers: 3, Churned: 1, ChurnRate: models.Ratio(1, 3)},
		{Dimension: models.Dimension{Provider: "large"}, NewCustomers: 300, Churned: 100, ChurnRate: models.Ratio(100, 300)},
	}

	goal := s.Score(rows, models.MethodGoal)
	require.Len(t, goal, 2)
	smallChurn := goal[0].Blocks[0].Metrics[0]
	largeChurn := goal[1].Blocks[0].Metrics[0]
	require.Equal(t, models.MetricChurnRate, smallChurn.Metric)
	assert.NotEqual(t, smallChurn.Score.Value, largeChurn.Score.Value)
	assert.Less(t, math.Abs(smallChurn.Score.Value-50), math.Abs(largeChurn.Score.Value-50))

	// Only the new-customer block has data, so it carries the whole weight.
	assert.InDelta(t, goal[1].Block("new_customer").Value, goal[1].Overall.Value, 1e-9)
	assert.False(t, goal[1].Block("capacity").Valid)

	z := s.Score(rows, models.MethodZScore)
	assert.False(t, z[0].Blocks[0].Metrics[0].Score.Valid, "identical rates have zero variance")
	assert.False(t, z[0].Overall.Valid)
}

func TestNewScorer_RequiresEveryFamily(t *testing.T) {
	cat, err := registry.Default()
	require.NoError(t, err)

	_, err = NewScorer(cat, map[string]float64{"orders": 30})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "months")
}
