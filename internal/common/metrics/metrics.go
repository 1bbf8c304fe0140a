// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"relationship-metrics/internal/models"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relationship_pipeline_runs_total",
			Help: "Metric pipeline runs by outcome",
		},
		[]string{"status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relationship_pipeline_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relationship_ingest_rows_total",
			Help: "Snapshot rows seen during normalization by outcome",
		},
		[]string{"outcome"},
	)

	ScoreCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relationship_score_cache_lookups_total",
			Help: "Score cache lookups by result",
		},
		[]string{"result"},
	)
)

// ObserveStage records a pipeline stage duration. Its signature matches
// the engine's progress callback.
func ObserveStage(stage string, elapsed time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordIngest adds a run's normalization counts.
func RecordIngest(stats models.IngestStats) {
	IngestRows.WithLabelValues("accepted").Add(float64(stats.Accepted))
	IngestRows.WithLabelValues("unresolved_identity").Add(float64(stats.UnresolvedIdentity))
	IngestRows.WithLabelValues("bad_timestamp").Add(float64(stats.BadTimestamp))
	IngestRows.WithLabelValues("excluded_kind").Add(float64(stats.ExcludedKind))
	IngestRows.WithLabelValues("blank_provider").Add(float64(stats.BlankProvider))
}
