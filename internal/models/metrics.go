// internal/models/metrics.go
package models

// Dimension identifies the group a MetricRow reduces. Empty fields are
// not part of the key.
type Dimension struct {
	Provider string `json:"provider,omitempty"`
	Location string `json:"location,omitempty"`
	Month    string `json:"month,omitempty"`
}

// Metric identifiers used by the scoring catalog.
const (
	MetricChurnRate          = "churn_rate"
	MetricNewRepeatRate      = "new_repeat_rate"
	MetricNewDeepRate        = "new_deep_rate"
	MetricFamiliarRepeatRate = "familiar_repeat_rate"
	MetricFamiliarDeepRate   = "familiar_deep_rate"
	MetricRegularRate        = "regular_rate"
	MetricRetentionRate      = "retention_rate"
	MetricAvgPostVisits      = "avg_post_visits"
	MetricVacancyRate        = "vacancy_rate"
	MetricStabilityCV        = "stability_cv"
	MetricRequestedShare     = "requested_share"
)

// MetricRow is one aggregated record. Counts are mature denominators and
// flagged numerators; rates are undefined when the denominator is zero.
type MetricRow struct {
	Dimension

	Transactions   int       `json:"transactions"`
	RequestedShare NullFloat `json:"requestedShare"`

	NewCustomers int       `json:"newCustomers"`
	Churned      int       `json:"churned"`
	ChurnRate    NullFloat `json:"churnRate"`
	RepeatRate   NullFloat `json:"repeatRate"`

	NewRepeatBase int       `json:"newRepeatBase"`
	NewRepeated   int       `json:"newRepeated"`
	NewRepeatRate NullFloat `json:"newRepeatRate"`
	NewDeepBase   int       `json:"newDeepBase"`
	NewDeep       int       `json:"newDeep"`
	NewDeepRate   NullFloat `json:"newDeepRate"`

	FamiliarRepeatBase int       `json:"familiarRepeatBase"`
	FamiliarRepeated   int       `json:"familiarRepeated"`
	FamiliarRepeatRate NullFloat `json:"familiarRepeatRate"`
	FamiliarDeepBase   int       `json:"familiarDeepBase"`
	FamiliarDeep       int       `json:"familiarDeep"`
	FamiliarDeepRate   NullFloat `json:"familiarDeepRate"`

	RegularBase     int       `json:"regularBase"`
	RegularAchieved int       `json:"regularAchieved"`
	RegularRate     NullFloat `json:"regularRate"`
	RetentionBase   int       `json:"retentionBase"`
	Retained        int       `json:"retained"`
	RetentionRate   NullFloat `json:"retentionRate"`
	AvgPostVisits   NullFloat `json:"avgPostVisits"`

	VacancyRate   NullFloat `json:"vacancyRate"`
	VacancyMonths int       `json:"vacancyMonths"`

	ActiveDaysAvg   NullFloat `json:"activeDaysAvg"`
	ActiveDaysCV    NullFloat `json:"activeDaysCv"`
	ServiceHoursAvg NullFloat `json:"serviceHoursAvg"`
	ServiceHoursCV  NullFloat `json:"serviceHoursCv"`
	StabilityCV     NullFloat `json:"stabilityCv"`
	StabilityMonths int       `json:"stabilityMonths"`
	DaysSinceLastTx *int      `json:"daysSinceLastTx,omitempty"`
}

// Metric returns a named value with the sample size behind it.
func (r MetricRow) Metric(id string) (NullFloat, int, bool) {
	switch id {
	case MetricChurnRate:
		return r.ChurnRate, r.NewCustomers, true
	case MetricNewRepeatRate:
		return r.NewRepeatRate, r.NewRepeatBase, true
	case MetricNewDeepRate:
		return r.NewDeepRate, r.NewDeepBase, true
	case MetricFamiliarRepeatRate:
		return r.FamiliarRepeatRate, r.FamiliarRepeatBase, true
	case MetricFamiliarDeepRate:
		return r.FamiliarDeepRate, r.FamiliarDeepBase, true
	case MetricRegularRate:
		return r.RegularRate, r.RegularBase, true
	case MetricRetentionRate:
		return r.RetentionRate, r.RetentionBase, true
	case MetricAvgPostVisits:
		return r.AvgPostVisits, r.RetentionBase, true
	case MetricVacancyRate:
		return r.VacancyRate, r.VacancyMonths, true
	case MetricStabilityCV:
		return r.StabilityCV, r.StabilityMonths, true
	case MetricRequestedShare:
		return r.RequestedShare, r.Transactions, true
	}
	return NullFloat{}, 0, false
}

// UtilizationRow is capacity usage for one (provider, location, month).
type UtilizationRow struct {
	Dimension
	Minutes int     `json:"minutes"`
	Hours   float64 `json:"hours"`
	Vacancy float64 `json:"vacancy"`
}

// LocationMonthlyAverage averages per-month new-customer outcomes for a
// location across the months that had mature new customers.
type LocationMonthlyAverage struct {
	Location      string    `json:"location"`
	Months        int       `json:"months"`
	AvgMatured    NullFloat `json:"avgMatured"`
	AvgChurned    NullFloat `json:"avgChurned"`
	AvgRetained   NullFloat `json:"avgRetained"`
	AvgRepeatRate NullFloat `json:"avgRepeatRate"`
}

type ReturnDayPercentiles struct {
	Samples int       `json:"samples"`
	P50     NullFloat `json:"p50"`
	P70     NullFloat `json:"p70"`
	P80     NullFloat `json:"p80"`
	P90     NullFloat `json:"p90"`
}

type OverallSummary struct {
	Matured    int                  `json:"matured"`
	Churned    int                  `json:"churned"`
	Retained   int                  `json:"retained"`
	ChurnRate  NullFloat            `json:"churnRate"`
	RepeatRate NullFloat            `json:"repeatRate"`
	ReturnDays ReturnDayPercentiles `json:"returnDays"`
}
