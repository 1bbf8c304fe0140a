// cmd/tools/catalog-tool/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"relationship-metrics/internal/common/config"
	"relationship-metrics/pkg/registry"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		help(out)
		return fmt.Errorf("no command given")
	}

	initCmd := flag.NewFlagSet("init", flag.ContinueOnError)
	setCmd := flag.NewFlagSet("set", flag.ContinueOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ContinueOnError)

	initPath := initCmd.String("path", "configs/metric-catalog.json", "Where to write the built-in catalog")
	force := initCmd.Bool("force", false, "Overwrite an existing file")

	setPath := setCmd.String("path", "configs/metric-catalog.json", "Catalog file")
	id := setCmd.String("id", "", "Block or metric id")
	field := setCmd.String("field", "", "Field to update (weight, target, floor, ceiling, displayName)")
	value := setCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", "configs/metric-catalog.json", "Catalog file")
	configPath := validateCmd.String("config", "", "Optional config file whose reliability_n0 must cover every family")

	switch args[0] {
	case "init":
		if err := initCmd.Parse(args[1:]); err != nil {
			return err
		}
		if _, err := os.Stat(*initPath); err == nil && !*force {
			return fmt.Errorf("%s exists, use -force to overwrite", *initPath)
		}
		cat, err := registry.Default()
		if err != nil {
			return err
		}
		if err := saveCatalog(cat, *initPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote built-in catalog to %s\n", *initPath)

	case "set":
		if err := setCmd.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *field == "" || *value == "" {
			return fmt.Errorf("id, field and value are required for set")
		}
		if err := updateCatalog(*setPath, *id, *field, *value); err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated %s, field %s to %s\n", *id, *field, *value)

	case "validate":
		if err := validateCmd.Parse(args[1:]); err != nil {
			return err
		}
		n, err := validateCatalog(*validatePath, *configPath)
		if err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}
		fmt.Fprintf(out, "Catalog validation passed. Found %d metrics.\n", n)

	case "help":
		help(out)

	default:
		help(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// updateCatalog edits one field and refuses to save a catalog that no
// longer validates.
func updateCatalog(path, id, field, value string) error {
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	num := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %w", field, err)
		}
		return v, nil
	}

	found := false
	for bi := range cat.Blocks {
		b := &cat.Blocks[bi]
		if b.ID == id {
			found = true
			switch field {
			case "weight":
				if b.Weight, err = num(); err != nil {
					return err
				}
			case "displayName":
				b.DisplayName = value
			default:
				return fmt.Errorf("unknown block field: %s", field)
			}
		}
		for mi := range b.Metrics {
			m := &b.Metrics[mi]
			if m.ID != id {
				continue
			}
			found = true
			switch field {
			case "target":
				if m.Goal.Target, err = num(); err != nil {
					return err
				}
			case "floor", "ceiling":
				v, err := num()
				if err != nil {
					return err
				}
				if field == "floor" {
					m.Goal.Floor = &v
				} else {
					m.Goal.Ceiling = &v
				}
			case "displayName":
				m.DisplayName = value
			default:
				return fmt.Errorf("unknown metric field: %s", field)
			}
		}
	}
	if !found {
		return fmt.Errorf("no block or metric with id %s", id)
	}
	if err := cat.Validate(); err != nil {
		return err
	}

	cat.LastUpdated = time.Now().Format(time.RFC3339)
	return saveCatalog(cat, path)
}

func validateCatalog(path, configPath string) (int, error) {
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return 0, err
	}

	n0 := config.DefaultAnalysis().ReliabilityN0
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return 0, err
		}
		n0 = cfg.Analysis.ReliabilityN0
	}
	for _, family := range cat.Families() {
		if _, ok := n0[family]; !ok {
			return 0, fmt.Errorf("family %s has no reliability_n0 entry", family)
		}
	}

	count := 0
	for _, b := range cat.Blocks {
		count += len(b.Metrics)
	}
	return count, nil
}

func saveCatalog(cat *registry.Catalog, path string) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

func help(out io.Writer) {
	fmt.Fprintln(out, `
Usage: catalog-tool <command> [flags]

Commands:
  init      Write the built-in metric catalog to a file
  set       Update a block weight or a metric goal
  validate  Validate a catalog file against the reliability settings
  help      Show this help message

Examples:
  catalog-tool init -path configs/metric-catalog.json
  catalog-tool set -id churn_rate -field target -value 0.2
  catalog-tool set -id new_customer -field weight -value 0.3
  catalog-tool validate -path configs/metric-catalog.json -config configs/config.yaml`)
}
