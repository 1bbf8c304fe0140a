// cmd/relationship-report/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"relationship-metrics/internal/analysis"
	"relationship-metrics/internal/common/config"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/common/metrics"
	"relationship-metrics/internal/export"
	"relationship-metrics/internal/ingest"
	"relationship-metrics/internal/models"
	"relationship-metrics/pkg/registry"
)

type options struct {
	bills      []string
	members    string
	locations  []string
	providers  []string
	exclude    []string
	out        string
	format     export.Format
	configPath string
	catalog    string
	logLevel   string
	quiet      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("relationship-report", flag.ContinueOnError)
	fs.SetOutput(stderr)

	bills := fs.String("bills", "", "Checkout CSV files, comma-separated")
	members := fs.String("members", "", "Optional member CSV")
	locations := fs.String("locations", "", "Locations to analyse, comma-separated (default all)")
	providers := fs.String("providers", "", "Providers to report, comma-separated (default all)")
	exclude := fs.String("exclude", "", "Providers to leave out, comma-separated")
	out := fs.String("out", "report", "Output directory")
	format := fs.String("format", "csv", "Output format (csv or json)")
	configPath := fs.String("config", "", "Optional config file for analysis parameters")
	catalog := fs.String("catalog", "", "Optional metric catalog JSON (overrides config)")
	logLevel := fs.String("log-level", "warn", "Log level")
	quiet := fs.Bool("quiet", false, "Hide the progress bar")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &options{
		bills:      splitCSV(*bills),
		members:    *members,
		locations:  splitCSV(*locations),
		providers:  splitCSV(*providers),
		exclude:    splitCSV(*exclude),
		out:        *out,
		configPath: *configPath,
		catalog:    *catalog,
		logLevel:   *logLevel,
		quiet:      *quiet,
	}
	if len(opts.bills) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("--bills is required")
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		return nil, err
	}
	opts.format = f
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	log := logger.NewStructured(opts.logLevel, "console")

	analysisCfg := config.DefaultAnalysis()
	if opts.configPath != "" {
		cfg, err := config.LoadFromFile(opts.configPath)
		if err != nil {
			return err
		}
		analysisCfg = cfg.Analysis
	}
	if opts.catalog != "" {
		analysisCfg.CatalogPath = opts.catalog
	}

	catalog, err := registry.LoadCatalog(analysisCfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	snapshot, err := ingest.LoadSnapshot(opts.bills, opts.members)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	bar := newProgressBar(stderr, opts.quiet)
	engine, err := analysis.NewEngine(
		analysis.ParamsFromConfig(analysisCfg),
		catalog,
		analysisCfg.ReliabilityN0,
		log,
		analysis.WithProgress(func(stage string, elapsed time.Duration) {
			metrics.ObserveStage(stage, elapsed)
			bar.Describe(stage)
			_ = bar.Add(1)
		}),
	)
	if err != nil {
		return err
	}

	scope := models.NewAnalysisScope(opts.locations, opts.providers, opts.exclude)
	res, err := engine.Run(ctx, snapshot, scope)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	w, err := export.NewWriter(opts.out, opts.format)
	if err != nil {
		return err
	}
	paths, err := w.WriteResult(res)
	if err != nil {
		return err
	}

	printSummary(stdout, res, paths)
	return nil
}

func newProgressBar(w io.Writer, quiet bool) *progressbar.ProgressBar {
	if quiet {
		w = io.Discard
	}
	return progressbar.NewOptions(len(analysis.Stages),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(w io.Writer, res *models.Result, paths []string) {
	fmt.Fprintf(w, "Run %s\n", res.RunID)
	if !res.Cutoff.IsZero() {
		fmt.Fprintf(w, "Data through %s\n", res.Cutoff.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "Rows accepted %d of %d\n", res.Stats.Accepted, res.Stats.TotalRows)
	fmt.Fprintf(w, "Providers %d, new customers %d, churned %d\n",
		len(res.ProviderMetrics), len(res.NewCustomerEntries), len(res.ChurnDetail))

	ranked := models.RankByOverall(res.GoalScores)
	if len(ranked) > 0 {
		fmt.Fprintln(w, "Goal scores:")
		for _, row := range ranked {
			score := "n/a"
			if row.Overall.Valid {
				score = fmt.Sprintf("%.1f", row.Overall.Value)
			}
			fmt.Fprintf(w, "  %-16s %s\n", row.Provider, score)
		}
	}

	fmt.Fprintln(w, "Wrote:")
	for _, p := range paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
