package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

const measurementColumns = `station_id, measurement_time, pollutants, source, import_time, original_data, processing_notes`

func scanMeasurement(row scanner) (models.Measurement, error) {
	var (
		m                   models.Measurement
		at, pollutants, imp string
		original            sql.NullString
	)
	err := row.Scan(&m.StationID, &at, &pollutants, &m.Metadata.Source, &imp, &original, &m.Metadata.ProcessingNotes)
	if err != nil {
		return m, err
	}
	if m.MeasurementTime, err = parseTime(at); err != nil {
		return m, err
	}
	if m.Metadata.ImportTime, err = parseTime(imp); err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(pollutants), &m.Pollutants); err != nil {
		return m, fmt.Errorf("decode pollutants: %w", err)
	}
	if original.Valid && original.String != "" {
		m.Metadata.OriginalData = json.RawMessage(original.String)
	}
	return m, nil
}

// FindMeasurement returns nil when no measurement exists at that instant.
func (s *Store) FindMeasurement(ctx context.Context, stationID string, at time.Time) (*models.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+measurementColumns+`
FROM measurements WHERE station_id = ? AND measurement_time = ?`, stationID, formatTime(at))
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMeasurement writes a new measurement. A second write for the same
// station and instant fails with reconcile.ErrConflict.
func (s *Store) InsertMeasurement(ctx context.Context, m models.Measurement) error {
	pollutants, err := json.Marshal(m.Pollutants)
	if err != nil {
		return err
	}
	var original any
	if len(m.Metadata.OriginalData) > 0 {
		original = string(m.Metadata.OriginalData)
	}
	source := m.Metadata.Source
	if source == "" {
		source = models.DefaultSource
	}
	importTime := m.Metadata.ImportTime
	if importTime.IsZero() {
		importTime = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO measurements (station_id, measurement_time, pollutants, source, import_time, original_data, processing_notes)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.StationID, formatTime(m.MeasurementTime), string(pollutants), source,
		formatTime(importTime), original, m.Metadata.ProcessingNotes,
	)
	return classify(err)
}

const hasPollutant = `EXISTS (SELECT 1 FROM json_each(measurements.pollutants) p WHERE json_extract(p.value, '$.pollutant') = ?)`

func measurementWhere(f models.MeasurementFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, f.StationID)
	}
	if f.Since != nil {
		where = append(where, "measurement_time >= ?")
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		where = append(where, "measurement_time <= ?")
		args = append(args, formatTime(*f.Until))
	}
	if f.Pollutant != "" {
		where = append(where, hasPollutant)
		args = append(args, string(f.Pollutant))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListMeasurements returns one page of measurements, newest first, plus the
// total number of matches.
func (s *Store) ListMeasurements(ctx context.Context, f models.MeasurementFilter) ([]models.Measurement, int, error) {
	clause, args := measurementWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + measurementColumns + ` FROM measurements` + clause + ` ORDER BY measurement_time DESC, station_id`
	query += pageClause(&args, f.Limit, f.Offset)

	out, err := s.queryMeasurements(ctx, query, args...)
	return out, total, err
}

// LatestMeasurements returns the newest measurement of every station.
func (s *Store) LatestMeasurements(ctx context.Context) ([]models.Measurement, error) {
	return s.queryMeasurements(ctx, `
SELECT `+measurementColumns+`
FROM measurements
WHERE measurement_time = (
  SELECT MAX(m2.measurement_time) FROM measurements m2 WHERE m2.station_id = measurements.station_id
)
ORDER BY station_id`)
}

func (s *Store) queryMeasurements(ctx context.Context, query string, args ...any) ([]models.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MeasurementStatistics aggregates the readings of one pollutant at one
// station. It returns nil when nothing matches.
func (s *Store) MeasurementStatistics(ctx context.Context, stationID string, pollutant models.Pollutant, since, until *time.Time) (*models.Statistics, error) {
	query := `
SELECT COUNT(*), AVG(json_extract(p.value, '$.value')), MIN(json_extract(p.value, '$.value')),
  MAX(json_extract(p.value, '$.value')), MAX(m.measurement_time)
FROM measurements m, json_each(m.pollutants) p
WHERE m.station_id = ? AND json_extract(p.value, '$.pollutant') = ?`
	args := []any{stationID, string(pollutant)}
	if since != nil {
		query += " AND m.measurement_time >= ?"
		args = append(args, formatTime(*since))
	}
	if until != nil {
		query += " AND m.measurement_time <= ?"
		args = append(args, formatTime(*until))
	}

	var (
		count       int
		avg, lo, hi sql.NullFloat64
		latest      sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count, &avg, &lo, &hi, &latest); err != nil {
		return nil, err
	}
	if count == 0 || !latest.Valid {
		return nil, nil
	}
	at, err := parseTime(latest.String)
	if err != nil {
		return nil, err
	}
	return &models.Statistics{
		Count:  count,
		Avg:    avg.Float64,
		Min:    lo.Float64,
		Max:    hi.Float64,
		Latest: at,
	}, nil
}

// Status summarises the store. Stations count as recent when they have a
// measurement at or after since.
func (s *Store) Status(ctx context.Context, since time.Time) (models.StatusSummary, error) {
	var sum models.StatusSummary

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) FROM stations`,
	).Scan(&sum.TotalStations, &sum.ActiveStations)
	if err != nil {
		return sum, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&sum.TotalMeasurements); err != nil {
		return sum, err
	}

	var at, source string
	err = s.db.QueryRowContext(ctx,
		`SELECT measurement_time, source FROM measurements ORDER BY measurement_time DESC LIMIT 1`,
	).Scan(&at, &source)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return sum, err
	default:
		t, err := parseTime(at)
		if err != nil {
			return sum, err
		}
		sum.LastMeasurementTime = &t
		sum.LastMeasurementSource = &source
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT station_id) FROM measurements WHERE measurement_time >= ?`, formatTime(since),
	).Scan(&sum.StationsWithRecentData)
	return sum, err
}
