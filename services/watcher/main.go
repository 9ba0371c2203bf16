package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/alerts"
	"github.com/02loveslollipop/eco-monitor/internal/config"
	"github.com/02loveslollipop/eco-monitor/internal/ingest"
	"github.com/02loveslollipop/eco-monitor/internal/logging"
	"github.com/02loveslollipop/eco-monitor/internal/metrics"
	"github.com/02loveslollipop/eco-monitor/internal/normalize"
	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
	"github.com/02loveslollipop/eco-monitor/internal/storage"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg, "eco-watcher")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := saveecobot.NewClient(cfg.FeedURL, cfg.FeedTimeout)
	if cfg.DryRun {
		return dryRun(ctx, cfg, client, logger)
	}

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	table, err := thresholds.Load(cfg.ThresholdsFile)
	if err != nil {
		return err
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

	syncer := ingest.New(client, store, logger, ingest.Options{
		Workers:      cfg.SyncWorkers,
		FetchTimeout: cfg.FeedTimeout,
		Thresholds:   table,
		Notifier:     notifier,
		Recorder:     metrics.New(),
	})

	if cfg.SyncInterval <= 0 {
		_, err := syncer.Run(ctx)
		return err
	}

	logger.Info("watching feed", "url", client.URL(), "interval", cfg.SyncInterval.String())
	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()
	for {
		// A failed fetch is retried on the next tick.
		if _, err := syncer.Run(ctx); err != nil && !errors.Is(err, ingest.ErrRunInProgress) {
			logger.Error("sync run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("watcher stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// dryRun fetches and normalizes one snapshot without touching storage.
func dryRun(ctx context.Context, cfg config.Config, client *saveecobot.Client, logger *slog.Logger) error {
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FeedTimeout)
	defer cancel()

	records, err := client.FetchSnapshot(fetchCtx)
	if err != nil {
		return err
	}
	logger.Info("fetched feed snapshot", "stations", len(records), "dry_run", true)

	batches, skipped := 0, 0
	for _, rec := range records {
		n, err := normalize.Station(rec)
		if err != nil {
			skipped++
			logger.Warn("dry-run: would skip station", "station_id", rec.ID, "error", err)
			continue
		}
		batches += len(n.Batches)
		logger.Debug("dry-run: would reconcile station", "station_id", rec.ID, "measurements", len(n.Batches))
	}
	logger.Info("dry-run complete", "stations", len(records), "skipped", skipped, "measurements", batches)
	return nil
}
