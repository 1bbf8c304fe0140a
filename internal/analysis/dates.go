package analysis

import "time"

const day = 24 * time.Hour

// dateOf truncates t to its calendar date, expressed as UTC midnight so
// that day arithmetic never crosses a DST boundary.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween is the number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)) / day)
}

func days(n int) time.Duration {
	return time.Duration(n) * day
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// monthsBefore steps back n calendar months from t, keeping the time of day.
func monthsBefore(t time.Time, n int) time.Time {
	return t.AddDate(0, -n, 0)
}

// distinctDates returns the ascending distinct calendar dates of stamps.
// stamps must already be sorted.
func distinctDates(stamps []time.Time) []time.Time {
	out := make([]time.Time, 0, len(stamps))
	for _, s := range stamps {
		d := dateOf(s)
		if n := len(out); n > 0 && out[n-1].Equal(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// datesAfter returns the distinct dates strictly after the date of baseline.
func datesAfter(baseline time.Time, stamps []time.Time) []time.Time {
	base := dateOf(baseline)
	all := distinctDates(stamps)
	for i, d := range all {
		if d.After(base) {
			return all[i:]
		}
	}
	return nil
}
