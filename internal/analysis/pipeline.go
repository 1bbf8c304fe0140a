package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relationship-metrics/internal/analysis/scoring"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

// Stage names reported to a ProgressFunc, in execution order.
const (
	StageNormalize = "normalize"
	StageIndex     = "index"
	StageCohorts   = "cohorts"
	StageClassify  = "classify"
	StageUtilize   = "utilization"
	StageAggregate = "aggregate"
	StageScore     = "score"
)

// Stages lists every stage so callers can size progress displays.
var Stages = []string{StageNormalize, StageIndex, StageCohorts, StageClassify, StageUtilize, StageAggregate, StageScore}

// ProgressFunc is called after each stage with its wall-clock duration.
type ProgressFunc func(stage string, elapsed time.Duration)

// Engine runs the metric pipeline over one snapshot. It holds no state
// between runs.
type Engine struct {
	params      Params
	fingerprint string
	scorer      *scoring.Scorer
	logger      logger.Logger
	progress    ProgressFunc
}

type Option func(*Engine)

func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

func NewEngine(params Params, catalog *registry.Catalog, n0 map[string]float64, log logger.Logger, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis params: %w", err)
	}
	scorer, err := scoring.NewScorer(catalog, n0)
	if err != nil {
		return nil, err
	}
	fp, err := paramsFingerprint(params, catalog, n0)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		params:      params,
		fingerprint: fp,
		scorer:      scorer,
		logger:      log.Named("analysis"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Fingerprint identifies the engine configuration: windows, thresholds,
// reliability sizes and catalog goals. Results computed under different
// fingerprints are not interchangeable.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

func (e *Engine) stage(name string, started time.Time) {
	elapsed := time.Since(started)
	e.logger.Debug("stage finished", map[string]interface{}{"stage": name, "elapsedMs": elapsed.Milliseconds()})
	if e.progress != nil {
		e.progress(name, elapsed)
	}
}

// Run computes cohorts, metrics and scores for snapshot under scope. Apart
// from RunID the result is a pure function of its inputs. The only data
// error is *MissingDimensionError; ctx is checked between stages.
func (e *Engine) Run(ctx context.Context, snapshot *models.Snapshot, scope models.AnalysisScope) (*models.Result, error) {
	res := &models.Result{
		RunID:             uuid.NewString(),
		Fingerprint:       snapshot.Fingerprint(),
		ParamsFingerprint: e.fingerprint,
	}
	log := e.logger.WithFields(map[string]interface{}{"runId": res.RunID})

	started := time.Now()
	all, stats, err := Normalize(snapshot, e.params)
	if err != nil {
		return nil, err
	}
	res.Stats = stats
	e.stage(StageNormalize, started)
	if stats.UnresolvedIdentity > 0 || stats.BadTimestamp > 0 {
		log.Info("rows excluded during normalization", map[string]interface{}{
			"unresolvedIdentity": stats.UnresolvedIdentity,
			"badTimestamp":       stats.BadTimestamp,
			"excludedKind":       stats.ExcludedKind,
		})
	}
	if stats.BlankProvider > 0 {
		log.Warn("rows without a provider kept out of provider metrics", map[string]interface{}{
			"blankProvider": stats.BlankProvider,
		})
	}

	scoped := make([]models.Transaction, 0, len(all))
	for _, tx := range all {
		if scope.IncludesLocation(tx.Location) {
			scoped = append(scoped, tx)
		}
	}
	if len(scoped) == 0 {
		log.Warn("no transactions inside scope", map[string]interface{}{"scope": scope.Fingerprint()})
		res.GoalScores = []models.ScoreRow{}
		res.ZScores = []models.ScoreRow{}
		return res, nil
	}
	cutoff := scoped[len(scoped)-1].CheckoutAt
	res.Cutoff = cutoff

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}
	started = time.Now()
	ix := BuildIndex(scoped)
	e.stage(StageIndex, started)

	started = time.Now()
	members := BuildMemberIndex(snapshot.Members)
	newCustomers := NewCustomerCohort(all, scope, members, e.params.NewCustomerMode)
	relationship := RelationshipCohort(scoped, members)
	familiar := FamiliarCohort(scoped, e.familiarStart(cutoff), e.params.FamiliarMinVisits, members)
	e.stage(StageCohorts, started)

	started = time.Now()
	cl := NewClassifier(e.params.windows(), cutoff)
	for _, entries := range [][]models.CohortEntry{newCustomers, relationship, familiar} {
		if err := cl.ClassifyAll(ctx, entries, ix, e.params.Parallelism); err != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", err)
		}
	}
	res.NewCustomerEntries = newCustomers
	res.RelationshipEntries = relationship
	res.FamiliarEntries = familiar
	e.stage(StageClassify, started)

	started = time.Now()
	hasUtil := snapshot.Columns.ServiceItem
	if hasUtil {
		res.Utilization = MonthlyUtilization(scoped, e.params.MonthlyCapacityHours)
	} else {
		res.Utilization = []models.UtilizationRow{}
	}
	e.stage(StageUtilize, started)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}
	started = time.Now()
	in := aggregateInput{
		txs:          scoped,
		newCustomers: newCustomers,
		relationship: relationship,
		familiar:     familiar,
		util:         res.Utilization,
		hasUtil:      hasUtil,
		cutoff:       cutoff,
		params:       e.params,
	}
	var lookback time.Time
	if e.params.LookbackMonths > 0 {
		lookback = monthsBefore(cutoff, e.params.LookbackMonths)
	}
	named := namedProvider(scope)
	res.ProviderMetrics = aggregate(in, grouping{key: byProvider, include: named, cohortSince: lookback})
	res.ProviderLocationMetrics = aggregate(in, grouping{key: byProviderLocation, include: named})
	res.ProviderMonthly = providerMonthly(in, named)
	if snapshot.Columns.Location {
		res.LocationMetrics = aggregate(in, grouping{key: byLocation, include: includeAll})
		res.LocationMonthly = locationMonthly(newCustomers)
	}
	res.Overall = overallSummary(newCustomers)
	res.ChurnDetail = churnDetail(newCustomers, scope)
	e.stage(StageAggregate, started)

	started = time.Now()
	res.ZScores = e.scorer.Score(res.ProviderMetrics, models.MethodZScore)
	res.GoalScores = e.scorer.Score(res.ProviderMetrics, models.MethodGoal)
	e.stage(StageScore, started)

	log.Info("analysis finished", map[string]interface{}{
		"providers":    len(res.ProviderMetrics),
		"newCustomers": len(newCustomers),
		"relations":    len(relationship),
		"familiar":     len(familiar),
		"cutoff":       cutoff.Format(time.RFC3339),
	})
	return res, nil
}

// familiarStart is where the familiar cohort's recent window begins.
func (e *Engine) familiarStart(cutoff time.Time) time.Time {
	months := e.params.LookbackMonths
	if months <= 0 {
		months = e.params.RecentMonths
	}
	return monthsBefore(cutoff, months)
}
