package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tchandler/eventworks/internal/server/app"
	"github.com/tchandler/eventworks/internal/server/config"
	"github.com/tchandler/eventworks/internal/server/db/sqlite"
	"github.com/tchandler/eventworks/internal/server/eventbus/memory"
	"github.com/tchandler/eventworks/internal/server/httpapi"
	"github.com/tchandler/eventworks/internal/server/metrics"
	"github.com/tchandler/eventworks/internal/shared/logging"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("eventworksd").Error("load config", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.New("eventworksd").Error("parse log level", "error", err)
		os.Exit(1)
	}
	logger := logging.NewWithLevel("eventworksd", level)

	store, err := sqlite.Open(ctx, cfg.DatabasePath, sqlite.WithRetention(cfg.JournalRetention))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	registryLogger := logging.NewWithLevel("registry", level)
	scheduler := eventworks.Synchronous()
	if cfg.Dispatch == config.DispatchAsync {
		scheduler = eventworks.NewAsyncScheduler(registryLogger)
	}
	registry := eventworks.New(
		eventworks.WithScheduler(scheduler),
		eventworks.WithLogger(registryLogger),
		eventworks.WithObserver(collector),
	)
	collector.Watch(registry)

	events := memory.New(registry)

	handler := httpapi.New(httpapi.Options{
		Logger:     logging.NewWithLevel("httpapi", level),
		Bus:        events,
		Store:      store,
		APIKey:     cfg.APIKey,
		AllowCIDRs: cfg.AllowCIDRs,
	})

	daemon, err := app.New(cfg, logger, store, events, handler, metrics.NewHandler(collector, logger))
	if err != nil {
		logger.Error("init app", "error", err)
		os.Exit(1)
	}

	logger.Info("starting", "dispatch", cfg.Dispatch, "database", cfg.DatabasePath)
	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "error", err)
		os.Exit(1)
	}
}
