package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"fundwatch/internal/ai"
	"fundwatch/internal/config"
	"fundwatch/internal/fetch"
	"fundwatch/internal/geo"
	"fundwatch/internal/publisher"
	"fundwatch/internal/service"
	"fundwatch/internal/source/fundsforngos"
	"fundwatch/internal/source/gso"
	"fundwatch/internal/source/opportunitydesk"
	"fundwatch/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	rawStore := postgres.NewRawPostingStore(db)
	processedStore := postgres.NewProcessedOpportunityStore(db)
	txManager := postgres.NewTransactionManager(db)

	fetchClient := fetch.New(cfg.Fetch, logger)

	sources := []service.Source{
		gso.New(gso.Config{
			BaseURL:  cfg.Sources.GSO.URL,
			MaxPages: cfg.Sources.GSO.MaxPages,
		}, fetchClient, logger),
		opportunitydesk.New(opportunitydesk.Config{
			BaseURL:  cfg.Sources.OpportunityDesk.URL,
			MaxPages: cfg.Sources.OpportunityDesk.MaxPages,
		}, fetchClient, logger),
		fundsforngos.New(fundsforngos.Config{
			FeedURL: cfg.Sources.FundsForNGOs.URL,
		}, fetchClient, logger),
	}

	engine := ai.NewEngine(cfg.AI, cfg.Pipeline.ValidFocusAreas, logger)
	rules := geo.NewRules(cfg.Pipeline.TargetRegions, cfg.Pipeline.GeneralScopes)

	maintenance := service.NewMaintenance(processedStore, cfg.Pipeline, logger)
	collector := service.NewCollector(sources, rawStore, cfg.Pipeline, logger)
	processor := service.NewProcessor(
		rawStore,
		processedStore,
		engine,
		rabbitMQ,
		txManager,
		rules,
		cfg.Pipeline,
		cfg.AI.MaxConcurrentCalls,
		logger,
	)
	pipeline := service.NewPipeline(maintenance, collector, processor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting pipeline run",
		"sources", len(sources),
		"targets", cfg.Pipeline.TargetRegions,
	)

	stats, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pipeline run complete",
		"duration", stats.Duration,
		"expired_deleted", stats.Maintenance.Expired,
		"stale_deleted", stats.Maintenance.Stale,
		"fetched", stats.Collect.Fetched,
		"inserted", stats.Collect.Inserted,
		"selected", stats.Process.Selected,
		"relevant", stats.Process.Relevant,
		"published", stats.Process.Published,
		"retried", stats.Process.Retried,
		"quarantined", stats.Process.Quarantined,
	)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
