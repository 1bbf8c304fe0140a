package analysis

import "time"

// IsMature reports whether a window of length w starting at baseline has
// fully elapsed by cutoff (baseline + w <= cutoff).
func IsMature(baseline, cutoff time.Time, w time.Duration) bool {
	return !baseline.Add(w).After(cutoff)
}

// IsMatureDays is IsMature with a window in calendar days.
func IsMatureDays(baseline, cutoff time.Time, windowDays int) bool {
	return IsMature(baseline, cutoff, days(windowDays))
}
