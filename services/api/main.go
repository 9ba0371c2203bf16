package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/02loveslollipop/eco-monitor/internal/alerts"
	"github.com/02loveslollipop/eco-monitor/internal/config"
	"github.com/02loveslollipop/eco-monitor/internal/ingest"
	"github.com/02loveslollipop/eco-monitor/internal/logging"
	"github.com/02loveslollipop/eco-monitor/internal/metrics"
	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
	"github.com/02loveslollipop/eco-monitor/internal/storage"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
	httpserver "github.com/02loveslollipop/eco-monitor/services/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg, "eco-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage error: %v", err)
	}
	defer closeStore()

	table, err := thresholds.Load(cfg.ThresholdsFile)
	if err != nil {
		log.Fatalf("thresholds error: %v", err)
	}

	var notifier ingest.Notifier
	if cfg.AlertsEnabled() {
		pub := alerts.NewPublisher(cfg, logger)
		if err := pub.Connect(ctx); err != nil {
			logger.Warn("mqtt unavailable, exceedance alerts disabled", "error", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	recorder := metrics.New()
	syncer := ingest.New(saveecobot.NewClient(cfg.FeedURL, cfg.FeedTimeout), store, logger, ingest.Options{
		Workers:      cfg.SyncWorkers,
		FetchTimeout: cfg.FeedTimeout,
		Thresholds:   table,
		Notifier:     notifier,
		Recorder:     recorder,
	})

	srv := httpserver.New(cfg, httpserver.Deps{
		Store:      store,
		Syncer:     syncer,
		Thresholds: table,
		Notifier:   notifier,
		Metrics:    recorder.Handler(),
		Logger:     logger,
	})
	logger.Info("REST API listening", "addr", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
