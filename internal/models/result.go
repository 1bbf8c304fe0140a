// internal/models/result.go
package models

import "time"

// Result is the complete output of one engine run.
type Result struct {
	RunID       string `json:"runId"`
	Fingerprint string `json:"fingerprint"`
	// ParamsFingerprint identifies the engine configuration that produced
	// the result.
	ParamsFingerprint string      `json:"paramsFingerprint"`
	Cutoff            time.Time   `json:"cutoff"`
	Stats             IngestStats `json:"stats"`

	NewCustomerEntries  []CohortEntry `json:"newCustomerEntries"`
	RelationshipEntries []CohortEntry `json:"relationshipEntries"`
	FamiliarEntries     []CohortEntry `json:"familiarEntries"`
	ChurnDetail         []CohortEntry `json:"churnDetail"`

	ProviderMetrics         []MetricRow              `json:"providerMetrics"`
	ProviderLocationMetrics []MetricRow              `json:"providerLocationMetrics"`
	ProviderMonthly         []MetricRow              `json:"providerMonthly"`
	LocationMetrics         []MetricRow              `json:"locationMetrics"`
	LocationMonthly         []LocationMonthlyAverage `json:"locationMonthly"`
	Utilization             []UtilizationRow         `json:"utilization"`
	Overall                 OverallSummary           `json:"overall"`

	ZScores    []ScoreRow `json:"zScores"`
	GoalScores []ScoreRow `json:"goalScores"`
}

// Scores returns the table for a method.
func (r *Result) Scores(method ScoreMethod) []ScoreRow {
	if method == MethodZScore {
		return r.ZScores
	}
	return r.GoalScores
}
