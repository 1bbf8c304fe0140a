package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relationship-metrics/internal/common/config"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

// ================================
// Test Fixtures
// ================================

func newTestEngine(t *testing.T, params Params, opts ...Option) *Engine {
	t.Helper()
	catalog, err := registry.Default()
	require.NoError(t, err)
	e, err := NewEngine(params, catalog, config.DefaultAnalysis().ReliabilityN0, logger.NewTestLogger(t), opts...)
	require.NoError(t, err)
	return e
}

func fullHistoryParams() Params {
	p := DefaultParams()
	p.LookbackMonths = 0
	return p
}

// salonSnapshot has two locations and two providers:
//   - 0912000001 first visits North/Amy and returns after 61 days (churned)
//   - 0912000002 first visits North/Amy and returns after 45 days
//   - 0912000003 first visits South/Ben and returns after 10 days
//   - 0912000004 first visits North/Amy on the last day (immature)
func salonSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Columns: fullColumns(),
		Rows: []models.RawTransaction{
			raw("0912000001", "North", "Amy", dayN(0), "60分鐘"),
			raw("0912000002", "North", "Amy", dayN(0), "30分鐘"),
			raw("0912000003", "South", "Ben", dayN(10), "90分鐘"),
			raw("0912000003", "South", "Ben", dayN(20), "90分鐘"),
			raw("0912000002", "North", "Amy", dayN(45), "30分鐘"),
			raw("0912000001", "North", "Amy", dayN(61), "60分鐘"),
			raw("0912000004", "North", "Amy", dayN(300), "45分鐘"),
		},
	}
}

func providerRow(t *testing.T, rows []models.MetricRow, provider string) models.MetricRow {
	t.Helper()
	for _, r := range rows {
		if r.Provider == provider {
			return r
		}
	}
	t.Fatalf("no metric row for provider %q", provider)
	return models.MetricRow{}
}

// ================================
// Normalization Tests
// ================================

func TestNormalize_RequiresProviderColumn(t *testing.T) {
	s := salonSnapshot()
	s.Columns.Provider = false

	_, _, err := Normalize(s, DefaultParams())

	var missing *MissingDimensionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "provider", missing.Dimension)
}

func TestNormalize_CountsDroppedRows(t *testing.T) {
	bad := raw("0912000009", "North", "Amy", time.Time{}, "")
	bad.CheckoutText = "yesterday"
	parsed := raw("0912000008", "North", "Amy", time.Time{}, "")
	parsed.CheckoutText = "2024/01/05 13:30"
	product := raw("0912000007", "North", "Amy", dayN(1), "")
	product.CheckoutKind = "商品"

	s := &models.Snapshot{
		Columns: fullColumns(),
		Rows: []models.RawTransaction{
			raw("0912000001", "North", "Amy", dayN(3), ""),
			raw("", "North", "Amy", dayN(2), ""),
			bad,
			parsed,
			product,
		},
	}

	txs, stats, err := Normalize(s, DefaultParams())

	require.NoError(t, err)
	assert.Equal(t, models.IngestStats{
		TotalRows:          5,
		Accepted:           2,
		UnresolvedIdentity: 1,
		BadTimestamp:       1,
		ExcludedKind:       1,
	}, stats)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 1, 5, 13, 30, 0, 0, time.UTC), txs[1].CheckoutAt)
	assert.Equal(t, 3, txs[1].Seq)
}

func TestNormalize_OrdersBySeqOnEqualTimestamps(t *testing.T) {
	s := &models.Snapshot{
		Columns: fullColumns(),
		Rows: []models.RawTransaction{
			raw("0912000002", "North", "Amy", dayN(1), ""),
			raw("0912000001", "North", "Amy", dayN(0), ""),
			raw("0912000003", "North", "Amy", dayN(0), ""),
		},
	}

	txs, _, err := Normalize(s, DefaultParams())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, []int{txs[0].Seq, txs[1].Seq, txs[2].Seq})
}

func TestParseTimestamp(t *testing.T) {
	for _, in := range []string{"2024-03-01 09:15:00", "2024/03/01 09:15", "2024-03-01T09:15:00Z"} {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, in)
		assert.Equal(t, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC), got.UTC(), in)
	}
	_, ok := ParseTimestamp("  ")
	assert.False(t, ok)
}

// ================================
// Engine Tests
// ================================

func TestEngineRun_EndToEnd(t *testing.T) {
	var stages []string
	e := newTestEngine(t, fullHistoryParams(), WithProgress(func(stage string, _ time.Duration) {
		stages = append(stages, stage)
	}))

	res, err := e.Run(context.Background(), salonSnapshot(), models.NewAnalysisScope(nil, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, Stages, stages)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, dayN(300), res.Cutoff)
	assert.Equal(t, 7, res.Stats.Accepted)

	require.Len(t, res.ProviderMetrics, 2)
	amy := providerRow(t, res.ProviderMetrics, "Amy")
	assert.Equal(t, 2, amy.NewCustomers)
	assert.Equal(t, 1, amy.Churned)
	assert.InDelta(t, 0.5, amy.ChurnRate.Value, 1e-12)
	ben := providerRow(t, res.ProviderMetrics, "Ben")
	assert.Equal(t, 1, ben.NewCustomers)
	assert.Equal(t, 0, ben.Churned)

	require.Len(t, res.LocationMetrics, 2)
	assert.Equal(t, "North", res.LocationMetrics[0].Location)
	assert.Equal(t, 3, res.Overall.Matured)
	require.Len(t, res.ChurnDetail, 1)
	assert.Equal(t, models.CustomerKey("886-0912000001"), res.ChurnDetail[0].Customer)

	require.Len(t, res.ZScores, 2)
	require.Len(t, res.GoalScores, 2)
	for _, row := range append(res.ZScores, res.GoalScores...) {
		if row.Overall.Valid {
			assert.GreaterOrEqual(t, row.Overall.Value, 0.0)
			assert.LessOrEqual(t, row.Overall.Value, 100.0)
		}
	}
	assert.NotEmpty(t, res.Utilization)
}

func TestEngineRun_IsDeterministic(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	scope := models.NewAnalysisScope(nil, nil, nil)

	first, err := e.Run(context.Background(), salonSnapshot(), scope)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), salonSnapshot(), scope)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	second.RunID = first.RunID
	assert.Equal(t, first, second)
}

func TestEngineRun_LocationScopeMovesCutoff(t *testing.T) {
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), salonSnapshot(), models.NewAnalysisScope([]string{"South"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, dayN(20), res.Cutoff)
	require.Len(t, res.ProviderMetrics, 1)
	ben := res.ProviderMetrics[0]
	assert.Equal(t, "Ben", ben.Provider)
	assert.Zero(t, ben.NewCustomers, "baseline plus churn window lies past the cutoff")
	assert.False(t, ben.ChurnRate.Valid)
}

func TestEngineRun_ExcludedProviderKeepsLocationRows(t *testing.T) {
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), salonSnapshot(), models.NewAnalysisScope(nil, nil, []string{"Ben"}))

	require.NoError(t, err)
	require.Len(t, res.ProviderMetrics, 1)
	assert.Equal(t, "Amy", res.ProviderMetrics[0].Provider)
	require.Len(t, res.LocationMetrics, 2)
	assert.Equal(t, "South", res.LocationMetrics[1].Location)
	assert.Equal(t, 2, res.LocationMetrics[1].Transactions)
}

func TestEngineRun_WithoutLocationColumn(t *testing.T) {
	s := salonSnapshot()
	s.Columns.Location = false
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), s, models.NewAnalysisScope(nil, nil, nil))

	require.NoError(t, err)
	assert.Nil(t, res.LocationMetrics)
	assert.Nil(t, res.LocationMonthly)
	require.Len(t, res.ProviderMetrics, 2)
	for _, r := range res.ProviderLocationMetrics {
		assert.Empty(t, r.Location)
	}
}

func TestEngineRun_WithoutServiceItemColumn(t *testing.T) {
	s := salonSnapshot()
	s.Columns.ServiceItem = false
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), s, models.NewAnalysisScope(nil, nil, nil))

	require.NoError(t, err)
	assert.Empty(t, res.Utilization)
	for _, r := range res.ProviderMetrics {
		assert.False(t, r.VacancyRate.Valid)
	}
}

func TestEngineRun_EmptyScope(t *testing.T) {
	e := newTestEngine(t, DefaultParams())

	res, err := e.Run(context.Background(), salonSnapshot(), models.NewAnalysisScope([]string{"Nowhere"}, nil, nil))

	require.NoError(t, err)
	assert.Empty(t, res.ProviderMetrics)
	assert.Empty(t, res.ZScores)
	assert.Empty(t, res.GoalScores)
}

func TestEngineRun_MissingProvider(t *testing.T) {
	s := salonSnapshot()
	s.Columns.Provider = false
	e := newTestEngine(t, DefaultParams())

	_, err := e.Run(context.Background(), s, models.NewAnalysisScope(nil, nil, nil))

	var missing *MissingDimensionError
	assert.True(t, errors.As(err, &missing))
}

func TestEngineRun_Cancelled(t *testing.T) {
	e := newTestEngine(t, DefaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, salonSnapshot(), models.NewAnalysisScope(nil, nil, nil))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_RejectsMissingReliabilityFamily(t *testing.T) {
	catalog, err := registry.Default()
	require.NoError(t, err)

	_, err = NewEngine(DefaultParams(), catalog, map[string]float64{"orders": 30}, logger.NewNoOpLogger())

	assert.Error(t, err)
}

func TestNewEngine_RejectsInvalidParams(t *testing.T) {
	catalog, err := registry.Default()
	require.NoError(t, err)
	n0 := config.DefaultAnalysis().ReliabilityN0

	tests := []struct {
		name   string
		mutate func(p *Params)
		want   string
	}{
		{"zero capacity", func(p *Params) { p.MonthlyCapacityHours = 0 }, "monthly capacity hours"},
		{"negative capacity", func(p *Params) { p.MonthlyCapacityHours = -168 }, "monthly capacity hours"},
		{"zero churn window", func(p *Params) { p.ChurnDays = 0 }, "churn days"},
		{"zero regular visits", func(p *Params) { p.RegularVisits = 0 }, "regular visits"},
		{"negative lookback", func(p *Params) { p.LookbackMonths = -1 }, "lookback months"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			_, err := NewEngine(p, catalog, n0, logger.NewNoOpLogger())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEngine_Fingerprint(t *testing.T) {
	base := newTestEngine(t, DefaultParams())
	assert.Len(t, base.Fingerprint(), 16)
	assert.Equal(t, base.Fingerprint(), newTestEngine(t, DefaultParams()).Fingerprint())

	parallel := DefaultParams()
	parallel.Parallelism = 8
	assert.Equal(t, base.Fingerprint(), newTestEngine(t, parallel).Fingerprint(), "scheduling does not change results")

	shorter := DefaultParams()
	shorter.ChurnDays = 10
	assert.NotEqual(t, base.Fingerprint(), newTestEngine(t, shorter).Fingerprint())

	catalog, err := registry.Default()
	require.NoError(t, err)
	n0 := make(map[string]float64)
	for k, v := range config.DefaultAnalysis().ReliabilityN0 {
		n0[k] = v * 2
	}
	e, err := NewEngine(DefaultParams(), catalog, n0, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.NotEqual(t, base.Fingerprint(), e.Fingerprint())

	res, err := base.Run(context.Background(), salonSnapshot(), models.NewAnalysisScope(nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint(), res.ParamsFingerprint)
}

// ================================
// Provider Attribution Tests
// ================================

func TestEngineRun_BlankProviderStaysOutOfProviderRows(t *testing.T) {
	s := salonSnapshot()
	s.Rows = append(s.Rows,
		raw("0912000005", "North", "", dayN(100), ""),
		raw("0912000005", "North", " ", dayN(110), ""),
	)
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), s, models.NewAnalysisScope(nil, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.BlankProvider)
	assert.Equal(t, 9, res.Stats.Accepted, "blank-provider rows are kept")

	require.Len(t, res.ProviderMetrics, 2)
	for _, rows := range [][]models.MetricRow{res.ProviderMetrics, res.ProviderLocationMetrics, res.ProviderMonthly} {
		for _, r := range rows {
			assert.NotEmpty(t, r.Provider)
		}
	}
	for _, row := range append(res.ZScores, res.GoalScores...) {
		assert.NotEmpty(t, row.Provider)
	}
	assert.Len(t, res.ZScores, 2)

	assert.Equal(t, 4, res.Overall.Matured, "the customer still counts brand-wide")
	require.Len(t, res.LocationMetrics, 2)
	north := res.LocationMetrics[0]
	assert.Equal(t, "North", north.Location)
	assert.Equal(t, 3, north.NewCustomers)
}

// relationshipEntry finds the entry for one (customer, location, provider).
func relationshipEntry(t *testing.T, entries []models.CohortEntry, customer, location, provider string) models.CohortEntry {
	t.Helper()
	for _, e := range entries {
		if e.Customer == models.CustomerKey(customer) && e.Location == location && e.Provider == provider {
			return e
		}
	}
	t.Fatalf("no relationship entry for %s at %s/%s", customer, location, provider)
	return models.CohortEntry{}
}

// loyaltySnapshot:
//   - 0912000010 visits North/Amy every ten days from day 0 to day 70
//     (regular on day 40, three visits after)
//   - 0912000011 visits North/Amy once, South/Amy twice and North/Ben
//     seven times (regular with Ben on day 45, two visits after)
//   - 0912000012 visits North/Amy on day 400 and sets the cutoff
func loyaltySnapshot() *models.Snapshot {
	rows := []models.RawTransaction{
		raw("0912000011", "North", "Amy", dayN(0), ""),
		raw("0912000011", "South", "Amy", dayN(5), ""),
		raw("0912000011", "South", "Amy", dayN(15), ""),
		raw("0912000012", "North", "Amy", dayN(400), ""),
	}
	for d := 0; d <= 70; d += 10 {
		rows = append(rows, raw("0912000010", "North", "Amy", dayN(d), ""))
	}
	for d := 5; d <= 65; d += 10 {
		rows = append(rows, raw("0912000011", "North", "Ben", dayN(d), ""))
	}
	return &models.Snapshot{Columns: fullColumns(), Rows: rows}
}

func TestEngineRun_RelationshipFlagsStayInsideTheirScope(t *testing.T) {
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), loyaltySnapshot(), models.NewAnalysisScope(nil, nil, nil))
	require.NoError(t, err)

	tests := []struct {
		name      string
		location  string
		provider  string
		count     int
		regular   bool
		repeatT2  bool
		retained  *bool
		postCount *int
	}{
		{"other provider and location visits ignored", "North", "Amy", 1, false, false, nil, nil},
		{"other location counted on its own", "South", "Amy", 2, false, true, nil, nil},
		{"other provider counted on its own", "North", "Ben", 7, true, true, boolPtr(false), intPtr(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relationshipEntry(t, res.RelationshipEntries, "886-0912000011", tt.location, tt.provider)
			assert.Equal(t, tt.count, got.RegularCount)
			assert.Equal(t, tt.regular, got.RegularAchieved)
			assert.Equal(t, tt.repeatT2, got.RepeatT2)
			assert.Equal(t, tt.retained, got.Retained)
			assert.Equal(t, tt.postCount, got.PostVisitCount)
		})
	}

	loyal := relationshipEntry(t, res.RelationshipEntries, "886-0912000010", "North", "Amy")
	assert.Equal(t, 8, loyal.RegularCount)
	require.NotNil(t, loyal.AchievementDate)
	assert.Equal(t, dateOf(dayN(40)), *loyal.AchievementDate)
	assert.Equal(t, boolPtr(true), loyal.Retained)
	assert.Equal(t, intPtr(3), loyal.PostVisitCount)
}

func TestEngineRun_RegularAndRetentionRates(t *testing.T) {
	e := newTestEngine(t, fullHistoryParams())

	res, err := e.Run(context.Background(), loyaltySnapshot(), models.NewAnalysisScope(nil, nil, nil))
	require.NoError(t, err)

	amy := providerRow(t, res.ProviderMetrics, "Amy")
	assert.Equal(t, 3, amy.RegularBase, "the day-400 relationship is not mature")
	assert.Equal(t, 1, amy.RegularAchieved)
	assert.InDelta(t, 1.0/3, amy.RegularRate.Value, 1e-12)
	assert.Equal(t, 1, amy.RetentionBase)
	assert.InDelta(t, 1.0, amy.RetentionRate.Value, 1e-12)
	assert.InDelta(t, 3.0, amy.AvgPostVisits.Value, 1e-12)

	ben := providerRow(t, res.ProviderMetrics, "Ben")
	assert.InDelta(t, 1.0, ben.RegularRate.Value, 1e-12)
	assert.Equal(t, 1, ben.RetentionBase)
	assert.InDelta(t, 0.0, ben.RetentionRate.Value, 1e-12)
	assert.True(t, ben.RetentionRate.Valid)
	assert.InDelta(t, 2.0, ben.AvgPostVisits.Value, 1e-12)
}
