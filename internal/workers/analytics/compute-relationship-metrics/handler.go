package computerelationshipmetrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"relationship-metrics/internal/analysis"
	"relationship-metrics/internal/cache"
	"relationship-metrics/internal/common/database"
	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/common/metrics"
	"relationship-metrics/internal/common/observability"
	"relationship-metrics/internal/common/validation"
	"relationship-metrics/internal/models"
)

const (
	TaskType = "compute-relationship-metrics"
)

//go:embed schema.json
var inputSchemaJSON []byte

var inputSchema = validation.MustCompile(TaskType, inputSchemaJSON)

// SnapshotLoader reads a snapshot from a SQL source.
type SnapshotLoader interface {
	Load(ctx context.Context, r database.TimeRange) (*models.Snapshot, error)
}

// CSVLoader reads checkout and member exports from disk.
type CSVLoader func(checkoutPaths []string, memberPath string) (*models.Snapshot, error)

// Runner computes results. Fingerprint must change whenever a setting that
// affects results changes; it is part of the cache key.
type Runner interface {
	Run(ctx context.Context, snapshot *models.Snapshot, scope models.AnalysisScope) (*models.Result, error)
	Fingerprint() string
}

type ResultCache interface {
	Get(ctx context.Context, key string) (*models.Result, error)
	Put(ctx context.Context, key string, res *models.Result) error
}

// Indexer publishes cohort detail under a name derived from the cache key,
// so runs with different scopes or settings never share an index.
type Indexer interface {
	IndexResult(ctx context.Context, key string, res *models.Result) (string, int, error)
}

// Dependencies lists collaborators. Sources is keyed by source name;
// Cache, Indexer and Observability are optional.
type Dependencies struct {
	Sources       map[string]SnapshotLoader
	LoadCSV       CSVLoader
	Engine        Runner
	Cache         ResultCache
	Indexer       Indexer
	Observability *observability.Observability
}

type Handler struct {
	config       *Config
	deps         Dependencies
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, deps Dependencies, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		deps:         deps,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput([]byte(job.Variables))
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute runs the job logic without a broker.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func parseInput(variables []byte) (*Input, error) {
	result := inputSchema.Validate(variables)
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(result.Error())
	}
	var input Input
	if err := json.Unmarshal(variables, &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidInputError("input cannot be nil")
	}

	snapshot, err := h.loadSnapshot(ctx, input)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("load_failed").Inc()
		return nil, err
	}

	scope := models.NewAnalysisScope(input.Locations, input.Providers, input.ExcludeProviders)
	key := cache.Key(snapshot.Fingerprint(), h.deps.Engine.Fingerprint(), scope)

	res, cached := h.cached(ctx, key, input.Refresh)
	if !cached {
		res, err = h.deps.Engine.Run(ctx, snapshot, scope)
		if err != nil {
			metrics.PipelineRuns.WithLabelValues("failed").Inc()
			return nil, mapEngineError(err)
		}
		metrics.PipelineRuns.WithLabelValues("success").Inc()
		metrics.RecordIngest(res.Stats)
		h.store(ctx, key, res)
	}

	output := h.summarize(res, key, cached)

	if input.IndexDetail {
		if h.deps.Indexer == nil {
			return nil, apperrors.NewIndexFailedError("", errors.New("no search index configured"))
		}
		index, n, err := h.deps.Indexer.IndexResult(ctx, key, res)
		if err != nil {
			return nil, err
		}
		output.Index = index
		output.IndexedDocuments = n
	}

	h.deps.Observability.RecordProviders(ctx, output.Providers)
	h.logger.Info("relationship metrics computed", map[string]interface{}{
		"runId":     output.RunID,
		"cached":    cached,
		"providers": output.Providers,
		"cutoff":    output.Cutoff,
	})
	return output, nil
}

func (h *Handler) loadSnapshot(ctx context.Context, input *Input) (*models.Snapshot, error) {
	if input.Source == SourceCSV {
		if len(input.CSVPaths) == 0 {
			return nil, apperrors.NewInvalidInputError("csvPaths is required for csv source")
		}
		if h.deps.LoadCSV == nil {
			return nil, apperrors.NewInvalidInputError("csv source is not enabled")
		}
		snap, err := h.deps.LoadCSV(input.CSVPaths, input.MemberPath)
		if err != nil {
			return nil, apperrors.NewSnapshotLoadFailedError(SourceCSV, err)
		}
		if len(snap.Rows) == 0 {
			return nil, apperrors.NewSnapshotEmptyError(SourceCSV)
		}
		return snap, nil
	}

	src, ok := h.deps.Sources[input.Source]
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("source %q is not configured", input.Source))
	}
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, err
	}
	return src.Load(ctx, r)
}

// cached returns a usable cache hit. Cache failures degrade to a fresh run.
func (h *Handler) cached(ctx context.Context, key string, refresh bool) (*models.Result, bool) {
	if h.deps.Cache == nil || refresh {
		return nil, false
	}
	res, err := h.deps.Cache.Get(ctx, key)
	if err != nil {
		if stdErr, ok := apperrors.AsStandardError(err); !ok || stdErr.Code != apperrors.ErrCodeCacheMiss {
			h.logger.Warn("score cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return nil, false
	}
	return res, true
}

func (h *Handler) store(ctx context.Context, key string, res *models.Result) {
	if h.deps.Cache == nil {
		return
	}
	if err := h.deps.Cache.Put(ctx, key, res); err != nil {
		h.logger.Warn("score cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (h *Handler) summarize(res *models.Result, key string, cached bool) *Output {
	stats := res.Stats
	out := &Output{
		RunID:         res.RunID,
		Fingerprint:   res.Fingerprint,
		CacheKey:      key,
		Cached:        cached,
		AcceptedRows:  stats.Accepted,
		DroppedRows:   stats.UnresolvedIdentity + stats.BadTimestamp + stats.ExcludedKind,
		Providers:     len(res.ProviderMetrics),
		NewCustomers:  len(res.NewCustomerEntries),
		Relationships: len(res.RelationshipEntries),
		Familiar:      len(res.FamiliarEntries),
		Churned:       len(res.ChurnDetail),
		TopProviders:  []ProviderScore{},
		ProcessedAt:   time.Now().UTC(),
	}
	if !res.Cutoff.IsZero() {
		out.Cutoff = res.Cutoff.Format("2006-01-02")
	}

	for i, row := range models.RankByOverall(res.GoalScores) {
		if i == h.config.TopN {
			break
		}
		ps := ProviderScore{Provider: row.Provider}
		if row.Overall.Valid {
			v := row.Overall.Value
			ps.Overall = &v
		}
		out.TopProviders = append(out.TopProviders, ps)
	}
	return out
}

func mapEngineError(err error) error {
	var dimErr *analysis.MissingDimensionError
	if errors.As(err, &dimErr) {
		return apperrors.NewMissingDimensionError(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewAnalysisAbortedError(err)
	}
	return err
}

func parseRange(from, to string) (database.TimeRange, error) {
	var r database.TimeRange
	var err error
	if r.From, err = parseBound(from); err != nil {
		return r, apperrors.NewInvalidScopeError("from: " + err.Error())
	}
	if r.To, err = parseBound(to); err != nil {
		return r, apperrors.NewInvalidScopeError("to: " + err.Error())
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, apperrors.NewInvalidScopeError("from must be before to")
	}
	return r, nil
}

func parseBound(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "completed")
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	code := string(apperrors.Normalize(err).Code)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "failed")
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
