package analysis

import (
	"math"
	"sort"
	"time"

	"relationship-metrics/internal/models"
)

// grouping describes one group-by pass of the aggregator.
type grouping struct {
	key     func(provider, location string) models.Dimension
	include func(provider string) bool
	// cohortSince limits new-customer and familiar entries to baselines on
	// or after it. Zero keeps full history.
	cohortSince time.Time
}

func byProvider(provider, _ string) models.Dimension {
	return models.Dimension{Provider: provider}
}

func byProviderLocation(provider, location string) models.Dimension {
	return models.Dimension{Provider: provider, Location: location}
}

func byLocation(_, location string) models.Dimension {
	return models.Dimension{Location: location}
}

func includeAll(string) bool { return true }

// namedProvider keeps selected providers and drops visits with no provider
// recorded; those still count toward location and overall figures.
func namedProvider(scope models.AnalysisScope) func(string) bool {
	return func(provider string) bool {
		return provider != "" && scope.IncludesProvider(provider)
	}
}

// aggregateInput is everything the reducers read. Nothing in it is mutated.
type aggregateInput struct {
	txs          []models.Transaction
	newCustomers []models.CohortEntry
	relationship []models.CohortEntry
	familiar     []models.CohortEntry
	util         []models.UtilizationRow
	hasUtil      bool
	cutoff       time.Time
	params       Params
}

type rowBuilder struct {
	row       models.MetricRow
	txs       []models.Transaction
	util      []models.UtilizationRow
	requested int
	flagged   int
	postSum   int
}

// aggregate reduces the input under g into one MetricRow per key, sorted
// by provider, location and month.
func aggregate(in aggregateInput, g grouping) []models.MetricRow {
	builders := make(map[models.Dimension]*rowBuilder)
	get := func(provider, location string) *rowBuilder {
		k := g.key(provider, location)
		b, ok := builders[k]
		if !ok {
			b = &rowBuilder{row: models.MetricRow{Dimension: k}}
			builders[k] = b
		}
		return b
	}

	for _, tx := range in.txs {
		if !g.include(tx.Provider) {
			continue
		}
		b := get(tx.Provider, tx.Location)
		b.txs = append(b.txs, tx)
		b.row.Transactions++
		if tx.Requested != nil {
			b.flagged++
			if *tx.Requested {
				b.requested++
			}
		}
	}

	inWindow := func(e models.CohortEntry) bool {
		return g.cohortSince.IsZero() || !e.Baseline.Before(g.cohortSince)
	}

	for _, e := range in.newCustomers {
		if !g.include(e.Provider) || !inWindow(e) {
			continue
		}
		r := &get(e.Provider, e.Location).row
		if e.Maturity.Churn {
			r.NewCustomers++
			if e.Churn {
				r.Churned++
			}
		}
		if e.Maturity.RepeatT2 {
			r.NewRepeatBase++
			if e.RepeatT2 {
				r.NewRepeated++
			}
		}
		if e.Maturity.RepeatT3 {
			r.NewDeepBase++
			if e.RepeatT3 {
				r.NewDeep++
			}
		}
	}

	for _, e := range in.familiar {
		if !g.include(e.Provider) || !inWindow(e) {
			continue
		}
		r := &get(e.Provider, e.Location).row
		if e.Maturity.RepeatT2 {
			r.FamiliarRepeatBase++
			if e.RepeatT2 {
				r.FamiliarRepeated++
			}
		}
		if e.Maturity.RepeatT3 {
			r.FamiliarDeepBase++
			if e.RepeatT3 {
				r.FamiliarDeep++
			}
		}
	}

	for _, e := range in.relationship {
		if !g.include(e.Provider) {
			continue
		}
		b := get(e.Provider, e.Location)
		if e.Maturity.Regular {
			b.row.RegularBase++
			if e.RegularAchieved {
				b.row.RegularAchieved++
			}
		}
		if e.Maturity.Retention && e.Retained != nil {
			b.row.RetentionBase++
			if *e.Retained {
				b.row.Retained++
			}
			if e.PostVisitCount != nil {
				b.postSum += *e.PostVisitCount
			}
		}
	}

	if in.hasUtil {
		for _, u := range in.util {
			if !g.include(u.Provider) {
				continue
			}
			b := get(u.Provider, u.Location)
			b.util = append(b.util, u)
		}
	}

	recentSince := monthsBefore(in.cutoff, in.params.RecentMonths)
	stabilitySince := monthsBefore(in.cutoff, in.params.StabilityMonths)

	rows := make([]models.MetricRow, 0, len(builders))
	for _, b := range builders {
		r := b.row
		r.RequestedShare = models.Ratio(b.requested, b.flagged)
		r.ChurnRate = models.Ratio(r.Churned, r.NewCustomers)
		r.RepeatRate = models.Ratio(r.NewCustomers-r.Churned, r.NewCustomers)
		r.NewRepeatRate = models.Ratio(r.NewRepeated, r.NewRepeatBase)
		r.NewDeepRate = models.Ratio(r.NewDeep, r.NewDeepBase)
		r.FamiliarRepeatRate = models.Ratio(r.FamiliarRepeated, r.FamiliarRepeatBase)
		r.FamiliarDeepRate = models.Ratio(r.FamiliarDeep, r.FamiliarDeepBase)
		r.RegularRate = models.Ratio(r.RegularAchieved, r.RegularBase)
		r.RetentionRate = models.Ratio(r.Retained, r.RetentionBase)
		r.AvgPostVisits = models.Ratio(b.postSum, r.RetentionBase)

		if in.hasUtil {
			r.VacancyRate, r.VacancyMonths = RecentVacancy(b.util, recentSince)
		}
		st := ComputeStability(b.txs, b.util, stabilitySince)
		r.ActiveDaysAvg, r.ActiveDaysCV = st.ActiveDaysAvg, st.ActiveDaysCV
		r.ServiceHoursAvg, r.ServiceHoursCV = st.ServiceHoursAvg, st.ServiceHoursCV
		r.StabilityCV, r.StabilityMonths = st.CV, st.Months
		r.DaysSinceLastTx = DaysSinceLast(b.txs, in.cutoff)

		rows = append(rows, r)
	}
	sortRows(rows)
	return rows
}

func sortRows(rows []models.MetricRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Dimension, rows[j].Dimension
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Month < b.Month
	})
}

// providerMonthly tracks each provider's repeat rates by baseline month
// for the new-customer and familiar cohorts. Only the repeat columns are
// filled.
func providerMonthly(in aggregateInput, include func(string) bool) []models.MetricRow {
	rows := make(map[models.Dimension]*models.MetricRow)
	get := func(e models.CohortEntry) *models.MetricRow {
		k := models.Dimension{Provider: e.Provider, Month: monthKey(e.Baseline)}
		r, ok := rows[k]
		if !ok {
			r = &models.MetricRow{Dimension: k}
			rows[k] = r
		}
		return r
	}

	for _, e := range in.newCustomers {
		if !include(e.Provider) {
			continue
		}
		if e.Maturity.RepeatT2 {
			r := get(e)
			r.NewRepeatBase++
			if e.RepeatT2 {
				r.NewRepeated++
			}
		}
		if e.Maturity.RepeatT3 {
			r := get(e)
			r.NewDeepBase++
			if e.RepeatT3 {
				r.NewDeep++
			}
		}
	}
	for _, e := range in.familiar {
		if !include(e.Provider) {
			continue
		}
		if e.Maturity.RepeatT2 {
			r := get(e)
			r.FamiliarRepeatBase++
			if e.RepeatT2 {
				r.FamiliarRepeated++
			}
		}
		if e.Maturity.RepeatT3 {
			r := get(e)
			r.FamiliarDeepBase++
			if e.RepeatT3 {
				r.FamiliarDeep++
			}
		}
	}

	out := make([]models.MetricRow, 0, len(rows))
	for _, r := range rows {
		r.NewRepeatRate = models.Ratio(r.NewRepeated, r.NewRepeatBase)
		r.NewDeepRate = models.Ratio(r.NewDeep, r.NewDeepBase)
		r.FamiliarRepeatRate = models.Ratio(r.FamiliarRepeated, r.FamiliarRepeatBase)
		r.FamiliarDeepRate = models.Ratio(r.FamiliarDeep, r.FamiliarDeepBase)
		out = append(out, *r)
	}
	sortRows(out)
	return out
}

// locationMonthly averages, per location, the monthly counts of new
// customers that are mature for the churn window.
func locationMonthly(entries []models.CohortEntry) []models.LocationMonthlyAverage {
	type monthAcc struct{ matured, churned int }
	perLoc := make(map[string]map[string]*monthAcc)
	for _, e := range entries {
		if !e.Maturity.Churn {
			continue
		}
		months, ok := perLoc[e.Location]
		if !ok {
			months = make(map[string]*monthAcc)
			perLoc[e.Location] = months
		}
		m := monthKey(e.Baseline)
		a, ok := months[m]
		if !ok {
			a = &monthAcc{}
			months[m] = a
		}
		a.matured++
		if e.Churn {
			a.churned++
		}
	}

	out := make([]models.LocationMonthlyAverage, 0, len(perLoc))
	for loc, months := range perLoc {
		keys := make([]string, 0, len(months))
		for m := range months {
			keys = append(keys, m)
		}
		sort.Strings(keys)

		var matured, churned, rate float64
		for _, m := range keys {
			a := months[m]
			matured += float64(a.matured)
			churned += float64(a.churned)
			rate += float64(a.matured-a.churned) / float64(a.matured)
		}
		n := float64(len(months))
		out = append(out, models.LocationMonthlyAverage{
			Location:      loc,
			Months:        len(months),
			AvgMatured:    models.Some(matured / n),
			AvgChurned:    models.Some(churned / n),
			AvgRetained:   models.Some((matured - churned) / n),
			AvgRepeatRate: models.Some(rate / n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// overallSummary covers every new customer in the location scope,
// regardless of provider selection.
func overallSummary(entries []models.CohortEntry) models.OverallSummary {
	var s models.OverallSummary
	var returns []float64
	for _, e := range entries {
		if !e.Maturity.Churn {
			continue
		}
		s.Matured++
		if e.Churn {
			s.Churned++
		}
		if e.ReturnDays != nil {
			returns = append(returns, float64(*e.ReturnDays))
		}
	}
	s.Retained = s.Matured - s.Churned
	s.ChurnRate = models.Ratio(s.Churned, s.Matured)
	s.RepeatRate = models.Ratio(s.Retained, s.Matured)
	s.ReturnDays = returnPercentiles(returns)
	return s
}

func returnPercentiles(values []float64) models.ReturnDayPercentiles {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return models.ReturnDayPercentiles{
		Samples: len(sorted),
		P50:     percentile(sorted, 0.50),
		P70:     percentile(sorted, 0.70),
		P80:     percentile(sorted, 0.80),
		P90:     percentile(sorted, 0.90),
	}
}

// percentile interpolates linearly between closest ranks; sorted must be
// ascending.
func percentile(sorted []float64, q float64) models.NullFloat {
	if len(sorted) == 0 {
		return models.Null()
	}
	rank := q * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return models.Some(sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo)))
}

// churnDetail lists mature, churned new customers for drill-down.
func churnDetail(entries []models.CohortEntry, scope models.AnalysisScope) []models.CohortEntry {
	out := make([]models.CohortEntry, 0)
	for _, e := range entries {
		if e.Maturity.Churn && e.Churn && scope.IncludesProvider(e.Provider) {
			out = append(out, e)
		}
	}
	return out
}
