// Package storage selects the persistence backend named by the config.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/config"
	"github.com/02loveslollipop/eco-monitor/internal/db"
	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
	"github.com/02loveslollipop/eco-monitor/internal/sqlitestore"
)

// Store is everything the binaries need from a backend.
type Store interface {
	reconcile.Store
	Ping(ctx context.Context) error
	CreateStation(ctx context.Context, s models.Station) (models.Station, error)
	UpdateStation(ctx context.Context, s models.Station) (models.Station, error)
	DeactivateStation(ctx context.Context, stationID string) (models.Station, error)
	ListStations(ctx context.Context, f models.StationFilter) ([]models.Station, int, error)
	ListMeasurements(ctx context.Context, f models.MeasurementFilter) ([]models.Measurement, int, error)
	LatestMeasurements(ctx context.Context) ([]models.Measurement, error)
	MeasurementStatistics(ctx context.Context, stationID string, pollutant models.Pollutant, since, until *time.Time) (*models.Statistics, error)
	Status(ctx context.Context, since time.Time) (models.StatusSummary, error)
}

var (
	_ Store = (*db.Store)(nil)
	_ Store = (*sqlitestore.Store)(nil)
)

// Open connects to the configured backend and makes sure its schema exists.
// The returned func releases it.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return store, func() { _ = store.Close() }, nil

	case config.DriverPostgres:
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connection: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("db migrate: %w", err)
		}
		logger.Info("using postgres store")
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}
