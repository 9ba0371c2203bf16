package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

const measurementColumns = `station_id, measurement_time, pollutants, source, import_time, original_data, processing_notes`

func scanMeasurement(row scanner) (models.Measurement, error) {
	var (
		m          models.Measurement
		pollutants []byte
		original   []byte
	)
	err := row.Scan(
		&m.StationID,
		&m.MeasurementTime,
		&pollutants,
		&m.Metadata.Source,
		&m.Metadata.ImportTime,
		&original,
		&m.Metadata.ProcessingNotes,
	)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(pollutants, &m.Pollutants); err != nil {
		return m, fmt.Errorf("decode pollutants: %w", err)
	}
	if len(original) > 0 {
		m.Metadata.OriginalData = json.RawMessage(original)
	}
	m.MeasurementTime = m.MeasurementTime.UTC()
	m.Metadata.ImportTime = m.Metadata.ImportTime.UTC()
	return m, nil
}

// FindMeasurement returns nil when no measurement exists at that instant.
func (s *Store) FindMeasurement(ctx context.Context, stationID string, at time.Time) (*models.Measurement, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+measurementColumns+`
FROM eco.measurements
WHERE station_id = $1 AND measurement_time = $2`, stationID, at)
	m, err := scanMeasurement(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		original = []byte(m.Metadata.OriginalData)
	}
	source := m.Metadata.Source
	if source == "" {
		source = models.DefaultSource
	}
	importTime := m.Metadata.ImportTime
	if importTime.IsZero() {
		importTime = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO eco.measurements (station_id, measurement_time, pollutants, source, import_time, original_data, processing_notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.StationID,
		m.MeasurementTime,
		pollutants,
		source,
		importTime,
		original,
		m.Metadata.ProcessingNotes,
	)
	return classify(err)
}

func measurementWhere(f models.MeasurementFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.StationID != "" {
		args = append(args, f.StationID)
		where = append(where, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		where = append(where, fmt.Sprintf("measurement_time >= $%d", len(args)))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		where = append(where, fmt.Sprintf("measurement_time <= $%d", len(args)))
	}
	if f.Pollutant != "" {
		args = append(args, string(f.Pollutant))
		where = append(where, fmt.Sprintf("pollutants @> jsonb_build_array(jsonb_build_object('pollutant', $%d::text))", len(args)))
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
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM eco.measurements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + measurementColumns + ` FROM eco.measurements` + clause + ` ORDER BY measurement_time DESC, station_id`
	query += pageClause(&args, f.Limit, f.Offset)

	out, err := s.queryMeasurements(ctx, query, args...)
	return out, total, err
}

// LatestMeasurements returns the newest measurement of every station.
func (s *Store) LatestMeasurements(ctx context.Context) ([]models.Measurement, error) {
	return s.queryMeasurements(ctx, `
SELECT DISTINCT ON (station_id) `+measurementColumns+`
FROM eco.measurements
ORDER BY station_id, measurement_time DESC`)
}

func (s *Store) queryMeasurements(ctx context.Context, query string, args ...any) ([]models.Measurement, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
	args := []any{stationID, string(pollutant)}
	query := `
SELECT COUNT(*), COALESCE(AVG((p->>'value')::float8), 0), COALESCE(MIN((p->>'value')::float8), 0),
       COALESCE(MAX((p->>'value')::float8), 0), MAX(m.measurement_time)
FROM eco.measurements m, jsonb_array_elements(m.pollutants) p
WHERE m.station_id = $1 AND p->>'pollutant' = $2`
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND m.measurement_time >= $%d", len(args))
	}
	if until != nil {
		args = append(args, *until)
		query += fmt.Sprintf(" AND m.measurement_time <= $%d", len(args))
	}

	var (
		st     models.Statistics
		latest *time.Time
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&st.Count, &st.Avg, &st.Min, &st.Max, &latest); err != nil {
		return nil, err
	}
	if st.Count == 0 || latest == nil {
		return nil, nil
	}
	st.Latest = latest.UTC()
	return &st, nil
}

// Status summarises the store in a single round trip. Stations count as
// recent when they have a measurement at or after since.
func (s *Store) Status(ctx context.Context, since time.Time) (models.StatusSummary, error) {
	var sum models.StatusSummary

	batch := &pgx.Batch{}
	batch.Queue(`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active') FROM eco.stations`).QueryRow(func(row pgx.Row) error {
		return row.Scan(&sum.TotalStations, &sum.ActiveStations)
	})
	batch.Queue(`SELECT COUNT(*) FROM eco.measurements`).QueryRow(func(row pgx.Row) error {
		return row.Scan(&sum.TotalMeasurements)
	})
	batch.Queue(`SELECT measurement_time, source FROM eco.measurements ORDER BY measurement_time DESC LIMIT 1`).QueryRow(func(row pgx.Row) error {
		var (
			ts     time.Time
			source string
		)
		err := row.Scan(&ts, &source)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		ts = ts.UTC()
		sum.LastMeasurementTime = &ts
		sum.LastMeasurementSource = &source
		return nil
	})
	batch.Queue(`SELECT COUNT(DISTINCT station_id) FROM eco.measurements WHERE measurement_time >= $1`, since).QueryRow(func(row pgx.Row) error {
		return row.Scan(&sum.StationsWithRecentData)
	})

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return models.StatusSummary{}, err
	}
	return sum, nil
}
