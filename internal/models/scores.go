// internal/models/scores.go
package models

import "sort"

type ScoreMethod string

const (
	MethodZScore ScoreMethod = "zscore"
	MethodGoal   ScoreMethod = "goal"
)

type MetricScore struct {
	Metric     string    `json:"metric"`
	Value      NullFloat `json:"value"`
	SampleSize int       `json:"sampleSize"`
	Score      NullFloat `json:"score"`
}

type BlockScore struct {
	Block   string        `json:"block"`
	Weight  float64       `json:"weight"`
	Score   NullFloat     `json:"score"`
	Metrics []MetricScore `json:"metrics"`
}

// ScoreRow is one provider's scores relative to the scored population.
type ScoreRow struct {
	Provider string       `json:"provider"`
	Method   ScoreMethod  `json:"method"`
	Blocks   []BlockScore `json:"blocks"`
	Overall  NullFloat    `json:"overall"`
}

// Block returns the named block score, undefined if absent.
func (s ScoreRow) Block(name string) NullFloat {
	for _, b := range s.Blocks {
		if b.Block == name {
			return b.Score
		}
	}
	return NullFloat{}
}

// RankByOverall returns a copy of rows ordered by descending overall score.
// Undefined scores sort last; ties break on provider name.
func RankByOverall(rows []ScoreRow) []ScoreRow {
	out := make([]ScoreRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Overall, out[j].Overall
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Valid && a.Value != b.Value {
			return a.Value > b.Value
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}
