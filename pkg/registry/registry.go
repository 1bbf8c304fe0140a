// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed default_catalog.json
var defaultCatalog []byte

// LoadCatalog reads a catalog file; an empty path yields the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate rejects duplicate ids, unknown directions, negative weights and
// goals whose target equals the zero point.
func (c *Catalog) Validate() error {
	if len(c.Blocks) == 0 {
		return fmt.Errorf("catalog has no blocks")
	}
	seen := map[string]bool{}
	for _, b := range c.Blocks {
		if b.ID == "" {
			return fmt.Errorf("catalog block without id")
		}
		if b.Weight < 0 {
			return fmt.Errorf("block %s: negative weight", b.ID)
		}
		for _, m := range b.Metrics {
			if seen[m.ID] {
				return fmt.Errorf("metric %s listed twice", m.ID)
			}
			seen[m.ID] = true
			switch m.Direction {
			case HigherIsBetter, LowerIsBetter:
			default:
				return fmt.Errorf("metric %s: direction must be %q or %q", m.ID, HigherIsBetter, LowerIsBetter)
			}
			if m.Family == "" {
				return fmt.Errorf("metric %s: family is required", m.ID)
			}
			if m.Worst() == m.Goal.Target {
				return fmt.Errorf("metric %s: goal target equals its zero point", m.ID)
			}
		}
	}
	return nil
}

// Families returns the distinct reliability families the catalog uses.
func (c *Catalog) Families() []string {
	var out []string
	seen := map[string]bool{}
	for _, b := range c.Blocks {
		for _, m := range b.Metrics {
			if !seen[m.Family] {
				seen[m.Family] = true
				out = append(out, m.Family)
			}
		}
	}
	return out
}
