// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"relationship-metrics/internal/analysis"
	"relationship-metrics/internal/cache"
	awsclient "relationship-metrics/internal/common/aws"
	"relationship-metrics/internal/common/camunda"
	"relationship-metrics/internal/common/config"
	"relationship-metrics/internal/common/database"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/common/metrics"
	"relationship-metrics/internal/common/observability"
	"relationship-metrics/internal/ingest"
	"relationship-metrics/internal/search"
	"relationship-metrics/pkg/registry"

	crm "relationship-metrics/internal/workers/analytics/compute-relationship-metrics"
	ssd "relationship-metrics/internal/workers/communication/send-score-digest"
)

var connectRetry = &camunda.RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

type pinger interface {
	Ping(ctx context.Context) error
}

// connect retries op until the dependency answers a ping.
func connect(ctx context.Context, name string, ping pinger) error {
	return camunda.Retry(ctx, connectRetry, name, func(ctx context.Context) error {
		return ping.Ping(ctx)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	if err := config.ValidateRuntime(cfg); err != nil {
		zapLog.Fatal("invalid runtime configuration", zap.Error(err))
	}

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown(ctx)

	// --- Zeebe ---
	zb, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig:            connectRetry,
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zb.Close()
	zapLog.Info("Zeebe client connected successfully")

	checks := map[string]readinessCheck{"zeebe": zb.HealthCheck}

	// --- Snapshot source ---
	tables := database.SourceTables{Checkouts: cfg.Source.Table, Members: cfg.Source.MembersTable}
	queryTimeout := config.GetDuration(cfg.Source.QueryTimeout)

	var source *database.SnapshotSource
	switch cfg.Source.Driver {
	case "mysql":
		my, err := database.NewMySQL(cfg.Database.MySQL)
		if err != nil {
			zapLog.Fatal("mysql init failed", zap.Error(err))
		}
		defer my.Close()
		if err := connect(ctx, "mysql", my); err != nil {
			zapLog.Fatal("mysql failed after retries", zap.Error(err))
		}
		checks["mysql"] = my.Ping
		source, err = my.Source(tables, queryTimeout)
		if err != nil {
			zapLog.Fatal("mysql source config invalid", zap.Error(err))
		}
	default:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		if err := connect(ctx, "postgres", pg); err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		checks["postgres"] = pg.Ping
		source, err = pg.Source(tables, queryTimeout)
		if err != nil {
			zapLog.Fatal("postgres source config invalid", zap.Error(err))
		}
	}
	zapLog.Info("Snapshot source connected", zap.String("driver", cfg.Source.Driver))

	// --- Redis score cache ---
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()
	if err := connect(ctx, "redis", rdb); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	checks["redis"] = rdb.Ping
	scores := cache.NewScoreCache(rdb.Client, rdb.TTL, log)
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (optional) ---
	var indexer crm.Indexer
	if cfg.Database.Elasticsearch.GetURL() != "" {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		if err := connect(ctx, "elasticsearch", es); err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		checks["elasticsearch"] = es.Ping
		indexer = search.NewCohortIndexer(es.Client, es.IndexPrefix, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- AWS notification channels (optional) ---
	var (
		email ssd.EmailSender
		sms   ssd.SMSSender
	)
	if cfg.AWS.SES.Enabled || cfg.AWS.SNS.Enabled {
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if cfg.AWS.SES.Enabled {
			email = awsclient.NewSESMailer(awsCfg, cfg.AWS.SES.FromEmail)
		}
		if cfg.AWS.SNS.Enabled {
			sms = awsclient.NewSNSSender(awsCfg, cfg.AWS.SNS.SenderID)
		}
	}

	// --- Metric engine ---
	catalog, err := registry.LoadCatalog(cfg.Analysis.CatalogPath)
	if err != nil {
		zapLog.Fatal("metric catalog load failed", zap.Error(err))
	}
	engine, err := analysis.NewEngine(
		analysis.ParamsFromConfig(cfg.Analysis),
		catalog,
		cfg.Analysis.ReliabilityN0,
		log,
		analysis.WithProgress(metrics.ObserveStage),
	)
	if err != nil {
		zapLog.Fatal("engine init failed", zap.Error(err))
	}

	// --- Workers ---
	var workers []*camunda.CamundaWorker

	if config.IsWorkerEnabled(cfg, crm.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, crm.TaskType)
		c := crm.DefaultConfig()
		c.MaxJobsActive = wcfg.MaxJobsActive
		c.Timeout = config.GetDuration(wcfg.Timeout)
		c.MaxRetries = wcfg.MaxRetries
		if err := c.Validate(); err != nil {
			zapLog.Fatal("invalid worker config", zap.String("taskType", crm.TaskType), zap.Error(err))
		}
		handler := crm.NewHandler(c, crm.Dependencies{
			Sources:       map[string]crm.SnapshotLoader{cfg.Source.Driver: source},
			LoadCSV:       ingest.LoadSnapshot,
			Engine:        engine,
			Cache:         scores,
			Indexer:       indexer,
			Observability: obs,
		}, log)
		workers = append(workers, camunda.NewWorker(zb.GetClient(), crm.TaskType, c.MaxJobsActive, c.Timeout, handler, obs, log))
	}

	if config.IsWorkerEnabled(cfg, ssd.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ssd.TaskType)
		c := ssd.DefaultConfig()
		c.MaxJobsActive = wcfg.MaxJobsActive
		c.Timeout = config.GetDuration(wcfg.Timeout)
		if err := c.Validate(); err != nil {
			zapLog.Fatal("invalid worker config", zap.String("taskType", ssd.TaskType), zap.Error(err))
		}
		handler := ssd.NewHandler(c, ssd.Dependencies{
			Results:       scores,
			Email:         email,
			SMS:           sms,
			Observability: obs,
		}, log)
		workers = append(workers, camunda.NewWorker(zb.GetClient(), ssd.TaskType, c.MaxJobsActive, c.Timeout, handler, obs, log))
	}

	for _, w := range workers {
		w.Start()
	}
	zapLog.Info("All workers started", zap.Int("count", len(workers)))

	// --- HTTP server ---
	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(&server{
			results: scores,
			params:  engine.Fingerprint(),
			checks:  checks,
			logger:  log.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("http server error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	zapLog.Info("Worker manager stopped")
}
