package scoring

import (
	"fmt"

	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

// Scorer scores a provider population against a metric catalog.
type Scorer struct {
	catalog *registry.Catalog
	n0      map[string]float64
}

// NewScorer requires a reference sample size for every catalog family.
func NewScorer(catalog *registry.Catalog, n0 map[string]float64) (*Scorer, error) {
	for _, family := range catalog.Families() {
		if v, ok := n0[family]; !ok || v <= 0 {
			return nil, fmt.Errorf("no reliability reference size for metric family %q", family)
		}
	}
	copied := make(map[string]float64, len(n0))
	for k, v := range n0 {
		copied[k] = v
	}
	return &Scorer{catalog: catalog, n0: copied}, nil
}

// Score returns one ScoreRow per input row, in input order. Population
// statistics come from rows only, so the result is relative to exactly
// that set of providers.
func (s *Scorer) Score(rows []models.MetricRow, method models.ScoreMethod) []models.ScoreRow {
	pops := make(map[string]Population)
	if method == models.MethodZScore {
		for _, b := range s.catalog.Blocks {
			for _, m := range b.Metrics {
				values := make([]models.NullFloat, 0, len(rows))
				for _, r := range rows {
					v, _, _ := r.Metric(m.ID)
					values = append(values, v)
				}
				pops[m.ID] = NewPopulation(values)
			}
		}
	}

	out := make([]models.ScoreRow, 0, len(rows))
	for _, r := range rows {
		sr := models.ScoreRow{Provider: r.Provider, Method: method}
		for _, b := range s.catalog.Blocks {
			bs := models.BlockScore{Block: b.ID, Weight: b.Weight}
			subs := make([]models.NullFloat, 0, len(b.Metrics))
			for _, m := range b.Metrics {
				v, n, ok := r.Metric(m.ID)
				if !ok {
					v = models.Null()
				}
				n0 := s.n0[m.Family]

				var score models.NullFloat
				switch method {
				case models.MethodZScore:
					score = ZScore(v, pops[m.ID], n, n0, m.Direction)
				default:
					score = GoalScore(v, m, n, n0)
				}
				subs = append(subs, score)
				bs.Metrics = append(bs.Metrics, models.MetricScore{
					Metric:     m.ID,
					Value:      v,
					SampleSize: n,
					Score:      score,
				})
			}
			bs.Score = Mean(subs)
			sr.Blocks = append(sr.Blocks, bs)
		}
		sr.Overall = Overall(sr.Blocks)
		out = append(out, sr)
	}
	return out
}
