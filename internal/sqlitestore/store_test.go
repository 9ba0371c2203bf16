package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func station(id, city string) models.Station {
	return models.Station{
		StationID:          id,
		CityName:           city,
		StationName:        "Station " + id,
		Timezone:           "Europe/Kyiv",
		Location:           models.GeoPoint{Longitude: 30.5, Latitude: 50.45},
		PlatformName:       "SaveDnipro",
		MeasuredParameters: []models.Pollutant{models.PM25},
		Status:             models.StatusActive,
	}
}

func measurement(stationID string, at time.Time, values ...float64) models.Measurement {
	m := models.Measurement{
		StationID:       stationID,
		MeasurementTime: at,
		Metadata:        models.MeasurementMetadata{Source: models.DefaultSource, ImportTime: t0},
	}
	for _, v := range values {
		m.Pollutants = append(m.Pollutants, models.PollutantReading{
			Pollutant:       models.PM25,
			Value:           v,
			Unit:            models.UnitMicrogramsPerM3,
			AveragingPeriod: models.Averaging2Minutes,
			QualityFlag:     models.QualityValid,
		})
	}
	return m
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "eco.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestUpsertStation_CreateThenUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.UpsertStation(ctx, station("S1", "Kyiv"))
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	if !created {
		t.Fatal("first upsert: created=false, want true")
	}

	if _, err := store.DeactivateStation(ctx, "S1"); err != nil {
		t.Fatalf("DeactivateStation: %v", err)
	}

	changed := station("S1", "Lviv")
	changed.MeasuredParameters = []models.Pollutant{models.PM10, models.Humidity}
	created, err = store.UpsertStation(ctx, changed)
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	if created {
		t.Fatal("second upsert: created=true, want false")
	}

	got, err := store.FindStationByID(ctx, "S1")
	if err != nil {
		t.Fatalf("FindStationByID: %v", err)
	}
	if got == nil {
		t.Fatal("FindStationByID: nil station")
	}
	if got.CityName != "Lviv" {
		t.Errorf("city_name=%q want %q", got.CityName, "Lviv")
	}
	if len(got.MeasuredParameters) != 2 || got.MeasuredParameters[1] != models.Humidity {
		t.Errorf("measured_parameters=%v", got.MeasuredParameters)
	}
	if got.Status != models.StatusInactive {
		t.Errorf("status=%q, feed upsert must keep inactive", got.Status)
	}
}

func TestFindStationByID_Missing(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.FindStationByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("FindStationByID: %v", err)
	}
	if got != nil {
		t.Fatalf("FindStationByID: got %+v, want nil", got)
	}
}

func TestCreateUpdateDeactivate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateStation(ctx, station("S1", "Kyiv")); err != nil {
		t.Fatalf("CreateStation: %v", err)
	}
	if _, err := store.CreateStation(ctx, station("S1", "Kyiv")); !errors.Is(err, reconcile.ErrConflict) {
		t.Fatalf("CreateStation duplicate: err=%v want ErrConflict", err)
	}

	upd := station("S1", "Odesa")
	upd.Status = models.StatusInactive
	got, err := store.UpdateStation(ctx, upd)
	if err != nil {
		t.Fatalf("UpdateStation: %v", err)
	}
	if got.CityName != "Odesa" || got.Status != models.StatusInactive {
		t.Errorf("UpdateStation: got %+v", got)
	}

	keep := station("S1", "Lviv")
	keep.Status = ""
	got, err = store.UpdateStation(ctx, keep)
	if err != nil {
		t.Fatalf("UpdateStation without status: %v", err)
	}
	if got.CityName != "Lviv" || got.Status != models.StatusInactive {
		t.Errorf("UpdateStation without status: got city=%q status=%q, want Lviv/inactive", got.CityName, got.Status)
	}

	if _, err := store.UpdateStation(ctx, station("S2", "Kyiv")); !errors.Is(err, reconcile.ErrNotFound) {
		t.Fatalf("UpdateStation missing: err=%v want ErrNotFound", err)
	}
	if _, err := store.DeactivateStation(ctx, "S2"); !errors.Is(err, reconcile.ErrNotFound) {
		t.Fatalf("DeactivateStation missing: err=%v want ErrNotFound", err)
	}
}

func TestListStations_FilterAndPage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, s := range []models.Station{station("A", "Kyiv"), station("B", "Kyiv"), station("C", "Lviv")} {
		if _, err := store.UpsertStation(ctx, s); err != nil {
			t.Fatalf("UpsertStation %s: %v", s.StationID, err)
		}
	}
	if _, err := store.DeactivateStation(ctx, "B"); err != nil {
		t.Fatalf("DeactivateStation: %v", err)
	}

	all, total, err := store.ListStations(ctx, models.StationFilter{})
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("ListStations: total=%d len=%d, want 3/3", total, len(all))
	}

	kyiv, total, err := store.ListStations(ctx, models.StationFilter{City: "kyiv", Status: models.StatusActive})
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if total != 1 || len(kyiv) != 1 || kyiv[0].StationID != "A" {
		t.Fatalf("ListStations kyiv active: total=%d got=%+v", total, kyiv)
	}

	page, total, err := store.ListStations(ctx, models.StationFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].StationID != "B" {
		t.Fatalf("ListStations page 2: total=%d got=%+v", total, page)
	}
}

func TestInsertMeasurement_Conflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.InsertMeasurement(ctx, measurement("S1", t0, 12)); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}
	err := store.InsertMeasurement(ctx, measurement("S1", t0, 99))
	if !errors.Is(err, reconcile.ErrConflict) {
		t.Fatalf("InsertMeasurement duplicate: err=%v want ErrConflict", err)
	}

	got, err := store.FindMeasurement(ctx, "S1", t0.In(time.FixedZone("EET", 2*3600)))
	if err != nil {
		t.Fatalf("FindMeasurement: %v", err)
	}
	if got == nil {
		t.Fatal("FindMeasurement: nil, want the stored measurement")
	}
	if got.Pollutants[0].Value != 12 {
		t.Errorf("value=%v want 12 (first write wins)", got.Pollutants[0].Value)
	}
	if !got.MeasurementTime.Equal(t0) {
		t.Errorf("measurement_time=%v want %v", got.MeasurementTime, t0)
	}

	missing, err := store.FindMeasurement(ctx, "S1", t0.Add(time.Minute))
	if err != nil || missing != nil {
		t.Fatalf("FindMeasurement missing: %v %v", missing, err)
	}
}

func TestMeasurementQueries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	inserts := []models.Measurement{
		measurement("S1", t0, 10),
		measurement("S1", t0.Add(time.Hour), 30),
		measurement("S1", t0.Add(2*time.Hour), 50),
		measurement("S2", t0.Add(30*time.Minute), 5),
	}
	for _, m := range inserts {
		if err := store.InsertMeasurement(ctx, m); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}
	other := measurement("S2", t0.Add(3*time.Hour))
	other.Pollutants = []models.PollutantReading{{
		Pollutant: models.Humidity, Value: 60, Unit: models.UnitPercent,
		AveragingPeriod: models.Averaging2Minutes, QualityFlag: models.QualityValid,
	}}
	if err := store.InsertMeasurement(ctx, other); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}

	list, total, err := store.ListMeasurements(ctx, models.MeasurementFilter{Pollutant: models.PM25})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if total != 4 || len(list) != 4 {
		t.Fatalf("ListMeasurements PM2.5: total=%d len=%d", total, len(list))
	}
	if !list[0].MeasurementTime.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("ListMeasurements: first=%v, want newest", list[0].MeasurementTime)
	}

	since := t0.Add(30 * time.Minute)
	until := t0.Add(time.Hour)
	ranged, total, err := store.ListMeasurements(ctx, models.MeasurementFilter{StationID: "S1", Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("ListMeasurements: %v", err)
	}
	if total != 1 || len(ranged) != 1 || ranged[0].Pollutants[0].Value != 30 {
		t.Fatalf("ListMeasurements range: total=%d got=%+v", total, ranged)
	}

	latest, err := store.LatestMeasurements(ctx)
	if err != nil {
		t.Fatalf("LatestMeasurements: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestMeasurements: len=%d want 2", len(latest))
	}
	if latest[0].StationID != "S1" || latest[0].Pollutants[0].Value != 50 {
		t.Errorf("latest S1=%+v", latest[0])
	}
	if latest[1].StationID != "S2" || latest[1].Pollutants[0].Pollutant != models.Humidity {
		t.Errorf("latest S2=%+v", latest[1])
	}

	stats, err := store.MeasurementStatistics(ctx, "S1", models.PM25, nil, nil)
	if err != nil {
		t.Fatalf("MeasurementStatistics: %v", err)
	}
	if stats == nil {
		t.Fatal("MeasurementStatistics: nil")
	}
	if stats.Count != 3 || stats.Avg != 30 || stats.Min != 10 || stats.Max != 50 {
		t.Errorf("stats=%+v", stats)
	}
	if !stats.Latest.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("stats.Latest=%v", stats.Latest)
	}

	none, err := store.MeasurementStatistics(ctx, "S1", models.Ozone, nil, nil)
	if err != nil || none != nil {
		t.Fatalf("MeasurementStatistics no data: %v %v", none, err)
	}
}

func TestStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	empty, err := store.Status(ctx, t0)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if empty.TotalStations != 0 || empty.LastMeasurementTime != nil {
		t.Fatalf("empty status=%+v", empty)
	}

	for _, s := range []models.Station{station("S1", "Kyiv"), station("S2", "Kyiv")} {
		if _, err := store.UpsertStation(ctx, s); err != nil {
			t.Fatalf("UpsertStation: %v", err)
		}
	}
	if _, err := store.DeactivateStation(ctx, "S2"); err != nil {
		t.Fatalf("DeactivateStation: %v", err)
	}
	if err := store.InsertMeasurement(ctx, measurement("S1", t0, 1)); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}
	if err := store.InsertMeasurement(ctx, measurement("S2", t0.Add(-48*time.Hour), 1)); err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}
	if err := store.TouchLastMeasurement(ctx, "S1", t0); err != nil {
		t.Fatalf("TouchLastMeasurement: %v", err)
	}

	sum, err := store.Status(ctx, t0.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if sum.TotalStations != 2 || sum.ActiveStations != 1 || sum.TotalMeasurements != 2 || sum.StationsWithRecentData != 1 {
		t.Errorf("status=%+v", sum)
	}
	if sum.LastMeasurementTime == nil || !sum.LastMeasurementTime.Equal(t0) {
		t.Errorf("last_measurement_time=%v want %v", sum.LastMeasurementTime, t0)
	}

	s1, err := store.FindStationByID(ctx, "S1")
	if err != nil || s1 == nil {
		t.Fatalf("FindStationByID: %v %v", s1, err)
	}
	if s1.LastMeasurementAt == nil || !s1.LastMeasurementAt.Equal(t0) {
		t.Errorf("last_measurement_at=%v want %v", s1.LastMeasurementAt, t0)
	}
}
