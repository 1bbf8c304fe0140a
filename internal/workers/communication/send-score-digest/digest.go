package sendscoredigest

import (
	"fmt"
	"strings"
	"text/template"

	"relationship-metrics/internal/models"
)

type digestLine struct {
	Rank     int
	Provider string
	Score    string
}

type digest struct {
	RunID     string
	Cutoff    string
	Scored    int
	Unscored  []string
	Top       []digestLine
	Bottom    []digestLine
	TopN      int
	Locations int
}

var emailTemplate = template.Must(template.New("digest").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`Provider relationship digest
Run {{.RunID}}, data through {{.Cutoff}}
{{.Scored}} providers scored across {{.Locations}} locations.

Top {{.TopN}} by overall goal score:
{{range .Top}}  {{.Rank}}. {{.Provider}}  {{.Score}}
{{end}}{{if .Bottom}}
Needs attention:
{{range .Bottom}}  {{.Rank}}. {{.Provider}}  {{.Score}}
{{end}}{{end}}{{if .Unscored}}
Not enough data: {{join .Unscored ", "}}
{{end}}`))

// buildDigest ranks goal scores. Bottom lines never repeat a top provider.
func buildDigest(res *models.Result, topN int) digest {
	d := digest{
		RunID:     res.RunID,
		Cutoff:    res.Cutoff.Format("2006-01-02"),
		TopN:      topN,
		Locations: len(res.LocationMetrics),
	}

	var scored []models.ScoreRow
	for _, row := range models.RankByOverall(res.GoalScores) {
		if row.Overall.Valid {
			scored = append(scored, row)
		} else {
			d.Unscored = append(d.Unscored, row.Provider)
		}
	}
	d.Scored = len(scored)

	for i := 0; i < len(scored) && i < topN; i++ {
		d.Top = append(d.Top, line(i+1, scored[i]))
	}
	for i := len(scored) - 1; i >= topN && i >= len(scored)-topN; i-- {
		d.Bottom = append(d.Bottom, line(i+1, scored[i]))
	}
	return d
}

func line(rank int, row models.ScoreRow) digestLine {
	return digestLine{Rank: rank, Provider: row.Provider, Score: fmt.Sprintf("%.1f", row.Overall.Value)}
}

func renderEmail(d digest) (string, error) {
	var sb strings.Builder
	if err := emailTemplate.Execute(&sb, d); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// renderSMS keeps to one line so it fits a single message for small N.
func renderSMS(d digest) string {
	parts := make([]string, 0, len(d.Top))
	for _, l := range d.Top {
		parts = append(parts, l.Provider+" "+l.Score)
	}
	top := "no scored providers"
	if len(parts) > 0 {
		top = "top " + strings.Join(parts, ", ")
	}
	return fmt.Sprintf("Relationship digest %s: %s", d.Cutoff, top)
}
