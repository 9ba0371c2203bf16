// Package reconcile decides create, update or skip for stations and
// measurements against a persistence store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

// ErrConflict is returned by a Store when a write collides with an existing
// (station_id, measurement_time) or station_id key.
var ErrConflict = errors.New("persistence conflict")

// ErrNotFound is returned by a Store when a station does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator used during ingestion.
type Store interface {
	// FindStationByID returns nil without error when the station is unknown.
	FindStationByID(ctx context.Context, stationID string) (*models.Station, error)
	// UpsertStation inserts or fully overwrites the feed-carried fields of a
	// station in one conditional write and reports whether it was inserted.
	UpsertStation(ctx context.Context, s models.Station) (created bool, err error)
	// FindMeasurement returns nil without error when no measurement exists.
	FindMeasurement(ctx context.Context, stationID string, at time.Time) (*models.Measurement, error)
	// InsertMeasurement returns ErrConflict when the key already exists.
	InsertMeasurement(ctx context.Context, m models.Measurement) error
	TouchLastMeasurement(ctx context.Context, stationID string, at time.Time) error
}

// Outcome is the decision taken for one station or measurement.
type Outcome int

const (
	Noop Outcome = iota
	Created
	Updated
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	}
	return "noop"
}

// PersistenceError tags a storage failure with the station being processed.
type PersistenceError struct {
	StationID string
	Op        string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("station %s: %s: %v", e.StationID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Reconciler applies create-or-update decisions against a Store.
type Reconciler struct {
	store Store
	now   func() time.Time
}

// New builds a Reconciler. A nil now defaults to time.Now.
func New(store Store, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, now: now}
}

// ReconcileStation creates the station if unknown, otherwise overwrites every
// field the candidate carries.
func (r *Reconciler) ReconcileStation(ctx context.Context, candidate models.Station) (Outcome, error) {
	if err := candidate.Validate(); err != nil {
		return Noop, fmt.Errorf("station %s: %w", candidate.StationID, err)
	}
	if candidate.Status == "" {
		candidate.Status = models.StatusActive
	}

	created, err := r.store.UpsertStation(ctx, candidate)
	if err != nil {
		return Noop, &PersistenceError{StationID: candidate.StationID, Op: "upsert station", Err: err}
	}
	if created {
		return Created, nil
	}
	return Updated, nil
}

// ReconcileMeasurement inserts the batch as a new measurement unless one is
// already stored for (stationID, at). Existing measurements and insert
// conflicts are reported as Skipped; an empty batch is a Noop.
func (r *Reconciler) ReconcileMeasurement(ctx context.Context, stationID string, at time.Time, batch []models.PollutantReading, meta models.MeasurementMetadata) (Outcome, error) {
	if len(batch) == 0 {
		return Noop, nil
	}

	existing, err := r.store.FindMeasurement(ctx, stationID, at)
	if err != nil {
		return Noop, &PersistenceError{StationID: stationID, Op: "find measurement", Err: err}
	}
	if existing != nil {
		return Skipped, nil
	}

	if meta.Source == "" {
		meta.Source = models.DefaultSource
	}
	meta.ImportTime = r.now().UTC()

	m := models.Measurement{
		StationID:       stationID,
		MeasurementTime: at.UTC(),
		Pollutants:      batch,
		Metadata:        meta,
	}
	if err := m.Validate(); err != nil {
		return Noop, fmt.Errorf("station %s: %w", stationID, err)
	}

	if err := r.store.InsertMeasurement(ctx, m); err != nil {
		if errors.Is(err, ErrConflict) {
			return Skipped, nil
		}
		return Noop, &PersistenceError{StationID: stationID, Op: "insert measurement", Err: err}
	}
	return Created, nil
}

// TouchStation refreshes the station's last measurement time.
func (r *Reconciler) TouchStation(ctx context.Context, stationID string) error {
	if err := r.store.TouchLastMeasurement(ctx, stationID, r.now().UTC()); err != nil {
		return &PersistenceError{StationID: stationID, Op: "touch station", Err: err}
	}
	return nil
}
