// pkg/registry/schema.go
package registry

// Direction says which way a metric improves.
type Direction string

const (
	HigherIsBetter Direction = "higher"
	LowerIsBetter  Direction = "lower"
)

// Catalog lists the scored metrics, grouped into weighted blocks.
type Catalog struct {
	Version     string  `json:"version"`
	LastUpdated string  `json:"lastUpdated"`
	Blocks      []Block `json:"blocks"`
}

type Block struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Weight      float64  `json:"weight"`
	Metrics     []Metric `json:"metrics"`
}

// Metric is one scored value. Family selects the reliability reference
// sample size; Goal drives the goal-distance scorer.
type Metric struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Direction   Direction `json:"direction"`
	Family      string    `json:"family"`
	Goal        Goal      `json:"goal"`
}

// Goal maps Floor (higher-is-better) or Ceiling (lower-is-better) to 0 and
// Target to 100.
type Goal struct {
	Target  float64  `json:"target"`
	Floor   *float64 `json:"floor,omitempty"`
	Ceiling *float64 `json:"ceiling,omitempty"`
}

// Worst returns the value that scores 0.
func (m Metric) Worst() float64 {
	if m.Direction == LowerIsBetter {
		if m.Goal.Ceiling != nil {
			return *m.Goal.Ceiling
		}
		return 1
	}
	if m.Goal.Floor != nil {
		return *m.Goal.Floor
	}
	return 0
}
