// Package export writes engine results as indented JSON or CSV tables.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/models"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want json or csv)", s)
}

// Writer places result files in a directory.
type Writer struct {
	dir    string
	format Format
}

func NewWriter(dir string, format Format) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewExportFailedError(dir, err)
	}
	return &Writer{dir: dir, format: format}, nil
}

// WriteResult writes res and returns the paths it created. JSON produces
// one result.json; CSV produces one file per table.
func (w *Writer) WriteResult(res *models.Result) ([]string, error) {
	if w.format == FormatJSON {
		path := filepath.Join(w.dir, "result.json")
		if err := w.writeFile(path, func(out io.Writer) error { return WriteJSON(out, res) }); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	cohorts := make([]models.CohortEntry, 0, len(res.NewCustomerEntries)+len(res.RelationshipEntries)+len(res.FamiliarEntries))
	cohorts = append(cohorts, res.NewCustomerEntries...)
	cohorts = append(cohorts, res.RelationshipEntries...)
	cohorts = append(cohorts, res.FamiliarEntries...)

	tables := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"provider_metrics.csv", func(out io.Writer) error { return WriteMetricsCSV(out, res.ProviderMetrics) }},
		{"provider_location_metrics.csv", func(out io.Writer) error { return WriteMetricsCSV(out, res.ProviderLocationMetrics) }},
		{"provider_monthly_metrics.csv", func(out io.Writer) error { return WriteMetricsCSV(out, res.ProviderMonthly) }},
		{"location_metrics.csv", func(out io.Writer) error { return WriteMetricsCSV(out, res.LocationMetrics) }},
		{"scores_zscore.csv", func(out io.Writer) error { return WriteScoresCSV(out, res.ZScores) }},
		{"scores_goal.csv", func(out io.Writer) error { return WriteScoresCSV(out, res.GoalScores) }},
		{"cohort_detail.csv", func(out io.Writer) error { return WriteCohortCSV(out, cohorts) }},
		{"churn_detail.csv", func(out io.Writer) error { return WriteCohortCSV(out, res.ChurnDetail) }},
		{"utilization.csv", func(out io.Writer) error { return WriteUtilizationCSV(out, res.Utilization) }},
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(w.dir, t.name)
		if err := w.writeFile(path, t.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Writer) writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewExportFailedError(path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return errors.NewExportFailedError(path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewExportFailedError(path, err)
	}
	return nil
}

func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var metricHeader = []string{
	"provider", "location", "month", "transactions", "requested_share",
	"new_customers", "churned", "churn_rate", "repeat_rate",
	"new_repeat_base", "new_repeated", "new_repeat_rate",
	"new_deep_base", "new_deep", "new_deep_rate",
	"familiar_repeat_base", "familiar_repeated", "familiar_repeat_rate",
	"familiar_deep_base", "familiar_deep", "familiar_deep_rate",
	"regular_base", "regular_achieved", "regular_rate",
	"retention_base", "retained", "retention_rate", "avg_post_visits",
	"vacancy_rate", "vacancy_months",
	"active_days_avg", "active_days_cv", "service_hours_avg", "service_hours_cv",
	"stability_cv", "stability_months", "days_since_last_tx",
}

func WriteMetricsCSV(w io.Writer, rows []models.MetricRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metricHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Provider, r.Location, r.Month, itoa(r.Transactions), r.RequestedShare.String(),
			itoa(r.NewCustomers), itoa(r.Churned), r.ChurnRate.String(), r.RepeatRate.String(),
			itoa(r.NewRepeatBase), itoa(r.NewRepeated), r.NewRepeatRate.String(),
			itoa(r.NewDeepBase), itoa(r.NewDeep), r.NewDeepRate.String(),
			itoa(r.FamiliarRepeatBase), itoa(r.FamiliarRepeated), r.FamiliarRepeatRate.String(),
			itoa(r.FamiliarDeepBase), itoa(r.FamiliarDeep), r.FamiliarDeepRate.String(),
			itoa(r.RegularBase), itoa(r.RegularAchieved), r.RegularRate.String(),
			itoa(r.RetentionBase), itoa(r.Retained), r.RetentionRate.String(), r.AvgPostVisits.String(),
			r.VacancyRate.String(), itoa(r.VacancyMonths),
			r.ActiveDaysAvg.String(), r.ActiveDaysCV.String(), r.ServiceHoursAvg.String(), r.ServiceHoursCV.String(),
			r.StabilityCV.String(), itoa(r.StabilityMonths), optInt(r.DaysSinceLastTx),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteScoresCSV writes one column per block, in the order of the first
// row's blocks.
func WriteScoresCSV(w io.Writer, rows []models.ScoreRow) error {
	cw := csv.NewWriter(w)
	header := []string{"provider", "method"}
	var blocks []string
	if len(rows) > 0 {
		for _, b := range rows[0].Blocks {
			blocks = append(blocks, b.Block)
			header = append(header, b.Block)
		}
	}
	header = append(header, "overall")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Provider, string(r.Method)}
		for _, name := range blocks {
			record = append(record, r.Block(name).String())
		}
		record = append(record, r.Overall.String())
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var cohortHeader = []string{
	"kind", "customer", "member_name", "location", "provider", "baseline",
	"visits_after", "churn_mature", "churned", "return_days", "repeat_t2", "repeat_t3",
	"regular_mature", "regular_achieved", "achievement_date", "regular_count",
	"retention_mature", "retained", "post_visit_count",
}

func WriteCohortCSV(w io.Writer, entries []models.CohortEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cohortHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			string(e.Kind), string(e.Customer), e.MemberName, e.Location, e.Provider, formatDate(e.Baseline),
			itoa(len(e.Subsequent)), btoa(e.Maturity.Churn), btoa(e.Churn), optInt(e.ReturnDays), btoa(e.RepeatT2), btoa(e.RepeatT3),
			btoa(e.Maturity.Regular), btoa(e.RegularAchieved), optDate(e.AchievementDate), itoa(e.RegularCount),
			btoa(e.Maturity.Retention), optBool(e.Retained), optInt(e.PostVisitCount),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteUtilizationCSV(w io.Writer, rows []models.UtilizationRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"provider", "location", "month", "minutes", "hours", "vacancy"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Provider, r.Location, r.Month, itoa(r.Minutes),
			strconv.FormatFloat(r.Hours, 'f', -1, 64),
			strconv.FormatFloat(r.Vacancy, 'f', 6, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func itoa(v int) string { return strconv.Itoa(v) }

func btoa(v bool) string { return strconv.FormatBool(v) }

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}
