package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

type key struct {
	station string
	at      int64
}

type fakeStore struct {
	stations     map[string]models.Station
	measurements map[key]models.Measurement
	touched      map[string]time.Time

	hideMeasurements bool // FindMeasurement always misses, to simulate a race
	insertErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stations:     make(map[string]models.Station),
		measurements: make(map[key]models.Measurement),
		touched:      make(map[string]time.Time),
	}
}

func (f *fakeStore) FindStationByID(_ context.Context, id string) (*models.Station, error) {
	s, ok := f.stations[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) UpsertStation(_ context.Context, s models.Station) (bool, error) {
	_, exists := f.stations[s.StationID]
	f.stations[s.StationID] = s
	return !exists, nil
}

func (f *fakeStore) FindMeasurement(_ context.Context, id string, at time.Time) (*models.Measurement, error) {
	if f.hideMeasurements {
		return nil, nil
	}
	m, ok := f.measurements[key{id, at.UnixNano()}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStore) InsertMeasurement(_ context.Context, m models.Measurement) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	k := key{m.StationID, m.MeasurementTime.UnixNano()}
	if _, ok := f.measurements[k]; ok {
		return ErrConflict
	}
	f.measurements[k] = m
	return nil
}

func (f *fakeStore) TouchLastMeasurement(_ context.Context, id string, at time.Time) error {
	f.touched[id] = at
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func station(id string) models.Station {
	return models.Station{
		StationID:    id,
		CityName:     "Kyiv",
		StationName:  "Centre",
		Location:     models.GeoPoint{Longitude: 30.52, Latitude: 50.45},
		PlatformName: "SaveDnipro",
	}
}

func batch() []models.PollutantReading {
	return []models.PollutantReading{{
		Pollutant:       models.PM25,
		Value:           12,
		Unit:            models.UnitMicrogramsPerM3,
		AveragingPeriod: models.DefaultAveragingPeriod,
		QualityFlag:     models.QualityValid,
	}}
}

func TestReconcileStationCreateThenUpdate(t *testing.T) {
	store := newFakeStore()
	r := New(store, func() time.Time { return fixedNow })
	ctx := context.Background()

	got, err := r.ReconcileStation(ctx, station("S1"))
	if err != nil || got != Created {
		t.Fatalf("first sighting: got %v, %v; want created", got, err)
	}

	updated := station("S1")
	updated.PlatformName = "EcoCity"
	updated.Location = models.GeoPoint{Longitude: 24.03, Latitude: 49.84}
	updated.MeasuredParameters = []models.Pollutant{models.PM10}

	got, err = r.ReconcileStation(ctx, updated)
	if err != nil || got != Updated {
		t.Fatalf("second sighting: got %v, %v; want updated", got, err)
	}
	stored := store.stations["S1"]
	if stored.PlatformName != "EcoCity" || stored.Location.Latitude != 49.84 || len(stored.MeasuredParameters) != 1 {
		t.Errorf("station not overwritten: %+v", stored)
	}
	if stored.Status != models.StatusActive {
		t.Errorf("status default: got %q", stored.Status)
	}
}

func TestReconcileStationRejectsInvalidCandidate(t *testing.T) {
	store := newFakeStore()
	r := New(store, nil)

	bad := station("S1")
	bad.Location.Latitude = 999
	if _, err := r.ReconcileStation(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if len(store.stations) != 0 {
		t.Error("invalid station was persisted")
	}
}

func TestReconcileMeasurementCreateSkipNoop(t *testing.T) {
	store := newFakeStore()
	r := New(store, func() time.Time { return fixedNow })
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	got, err := r.ReconcileMeasurement(ctx, "S1", at, batch(), models.MeasurementMetadata{})
	if err != nil || got != Created {
		t.Fatalf("first insert: got %v, %v", got, err)
	}
	m := store.measurements[key{"S1", at.UnixNano()}]
	if m.Metadata.Source != models.DefaultSource || !m.Metadata.ImportTime.Equal(fixedNow) {
		t.Errorf("metadata defaults: got %+v", m.Metadata)
	}

	got, err = r.ReconcileMeasurement(ctx, "S1", at, batch(), models.MeasurementMetadata{})
	if err != nil || got != Skipped {
		t.Fatalf("resend: got %v, %v; want skipped", got, err)
	}

	got, err = r.ReconcileMeasurement(ctx, "S1", at.Add(time.Minute), nil, models.MeasurementMetadata{})
	if err != nil || got != Noop {
		t.Fatalf("empty batch: got %v, %v; want noop", got, err)
	}
	if len(store.measurements) != 1 {
		t.Errorf("expected 1 stored measurement, got %d", len(store.measurements))
	}
}

func TestReconcileMeasurementConflictIsSkipped(t *testing.T) {
	store := newFakeStore()
	r := New(store, nil)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	if _, err := r.ReconcileMeasurement(ctx, "S1", at, batch(), models.MeasurementMetadata{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The pre-check misses, so the storage constraint has to catch it.
	store.hideMeasurements = true
	got, err := r.ReconcileMeasurement(ctx, "S1", at, batch(), models.MeasurementMetadata{})
	if err != nil {
		t.Fatalf("conflict must not surface as an error, got %v", err)
	}
	if got != Skipped {
		t.Errorf("got %v, want skipped", got)
	}
}

func TestReconcileMeasurementPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("disk full")
	r := New(store, nil)

	_, err := r.ReconcileMeasurement(context.Background(), "S9", time.Now(), batch(), models.MeasurementMetadata{})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %T %v", err, err)
	}
	if pe.StationID != "S9" {
		t.Errorf("station id: got %q, want S9", pe.StationID)
	}
	if !errors.Is(err, store.insertErr) {
		t.Error("underlying error not wrapped")
	}
}

func TestTouchStation(t *testing.T) {
	store := newFakeStore()
	r := New(store, func() time.Time { return fixedNow })

	if err := r.TouchStation(context.Background(), "S1"); err != nil {
		t.Fatalf("TouchStation: %v", err)
	}
	if !store.touched["S1"].Equal(fixedNow) {
		t.Errorf("touched at %v, want %v", store.touched["S1"], fixedNow)
	}
}
