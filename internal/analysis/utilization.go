package analysis

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"relationship-metrics/internal/models"
)

var durationPattern = regexp.MustCompile(`(\d+)\s*(?:分鐘|分钟|(?i:min(?:ute)?s?)\b)`)

// ExtractMinutes sums every "<N>分鐘" (or "<N> min") occurrence in a
// service-item text. Text without durations is zero minutes.
func ExtractMinutes(text string) int {
	total := 0
	for _, m := range durationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// CapacityHours charges half an hour per started 30-minute bucket.
func CapacityHours(minutes int) float64 {
	if minutes <= 0 {
		return 0
	}
	buckets := (minutes + 29) / 30
	return float64(buckets) * 0.5
}

// Vacancy is the unused share of a monthly capacity ceiling, in [0, 1].
// capacity must be positive; NewEngine rejects params where it is not.
func Vacancy(hours, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, 1-hours/capacity))
}

type utilKey struct {
	provider string
	location string
	month    string
}

// MonthlyUtilization sums capacity hours per (provider, location, month).
// Rows come back sorted by provider, location and month.
func MonthlyUtilization(txs []models.Transaction, capacity float64) []models.UtilizationRow {
	type acc struct {
		minutes int
		hours   float64
	}
	sums := make(map[utilKey]*acc)
	for _, tx := range txs {
		k := utilKey{provider: tx.Provider, location: tx.Location, month: monthKey(tx.CheckoutAt)}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		mins := ExtractMinutes(tx.ServiceItem)
		a.minutes += mins
		a.hours += CapacityHours(mins)
	}

	rows := make([]models.UtilizationRow, 0, len(sums))
	for k, a := range sums {
		rows = append(rows, models.UtilizationRow{
			Dimension: models.Dimension{Provider: k.provider, Location: k.location, Month: k.month},
			Minutes:   a.minutes,
			Hours:     a.hours,
			Vacancy:   Vacancy(a.hours, capacity),
		})
	}
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
	return rows
}

// rowMonthStart parses a row's "2006-01" month key.
func rowMonthStart(r models.UtilizationRow) time.Time {
	t, err := time.Parse("2006-01", r.Month)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RecentVacancy averages the vacancy of rows whose month starts on or after
// since. It returns the mean and the number of rows averaged.
func RecentVacancy(rows []models.UtilizationRow, since time.Time) (models.NullFloat, int) {
	sum, n := 0.0, 0
	for _, r := range rows {
		if rowMonthStart(r).Before(since) {
			continue
		}
		sum += r.Vacancy
		n++
	}
	if n == 0 {
		return models.Null(), 0
	}
	return models.Some(sum / float64(n)), n
}
