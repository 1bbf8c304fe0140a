package analysis

import (
	"math"
	"time"

	"relationship-metrics/internal/models"
)

// Stability summarizes how evenly a provider works across recent months.
type Stability struct {
	ActiveDaysAvg   models.NullFloat
	ActiveDaysCV    models.NullFloat
	ServiceHoursAvg models.NullFloat
	ServiceHoursCV  models.NullFloat
	// CV prefers the service-hours CV and falls back to active days.
	CV     models.NullFloat
	Months int
}

// meanCV returns the mean and the coefficient of variation (sample
// standard deviation over mean). The CV needs two samples and a non-zero mean.
func meanCV(values []float64) (models.NullFloat, models.NullFloat) {
	n := len(values)
	if n == 0 {
		return models.Null(), models.Null()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 || mean == 0 {
		return models.Some(mean), models.Null()
	}
	ss := 0.0
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	return models.Some(mean), models.Some(std / mean)
}

// ComputeStability looks at months starting on or after since. Active days
// come from txs grouped by month; hours come from the utilization rows.
func ComputeStability(txs []models.Transaction, util []models.UtilizationRow, since time.Time) Stability {
	daysByMonth := make(map[string]map[time.Time]struct{})
	var months []string
	for _, tx := range txs {
		if monthStart(tx.CheckoutAt).Before(since) {
			continue
		}
		m := monthKey(tx.CheckoutAt)
		set, ok := daysByMonth[m]
		if !ok {
			set = make(map[time.Time]struct{})
			daysByMonth[m] = set
			months = append(months, m)
		}
		set[dateOf(tx.CheckoutAt)] = struct{}{}
	}
	active := make([]float64, 0, len(months))
	for _, m := range months {
		active = append(active, float64(len(daysByMonth[m])))
	}

	var hours []float64
	for _, r := range util {
		if rowMonthStart(r).Before(since) {
			continue
		}
		hours = append(hours, r.Hours)
	}

	var s Stability
	s.ActiveDaysAvg, s.ActiveDaysCV = meanCV(active)
	s.ServiceHoursAvg, s.ServiceHoursCV = meanCV(hours)
	switch {
	case s.ServiceHoursCV.Valid:
		s.CV, s.Months = s.ServiceHoursCV, len(hours)
	case s.ActiveDaysCV.Valid:
		s.CV, s.Months = s.ActiveDaysCV, len(active)
	}
	return s
}

// DaysSinceLast is the whole days between the latest transaction and cutoff.
func DaysSinceLast(txs []models.Transaction, cutoff time.Time) *int {
	if len(txs) == 0 {
		return nil
	}
	last := txs[0].CheckoutAt
	for _, tx := range txs[1:] {
		if tx.CheckoutAt.After(last) {
			last = tx.CheckoutAt
		}
	}
	d := int(cutoff.Sub(last) / day)
	return &d
}
