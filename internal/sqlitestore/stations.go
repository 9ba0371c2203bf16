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
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
)

const stationColumns = `station_id, city_name, station_name, local_name, timezone, lon, lat,
  platform_name, measured_parameters, status, last_measurement_at, created_at, updated_at`

func scanStation(row scanner) (models.Station, error) {
	var (
		st                   models.Station
		params, status       string
		lastAt               sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&st.StationID,
		&st.CityName,
		&st.StationName,
		&st.LocalName,
		&st.Timezone,
		&st.Location.Longitude,
		&st.Location.Latitude,
		&st.PlatformName,
		&params,
		&status,
		&lastAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return st, err
	}
	st.Status = models.StationStatus(status)
	if err := json.Unmarshal([]byte(params), &st.MeasuredParameters); err != nil {
		return st, fmt.Errorf("decode measured_parameters: %w", err)
	}
	if st.LastMeasurementAt, err = parseNullTime(lastAt); err != nil {
		return st, err
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return st, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return st, err
	}
	return st, nil
}

func encodeParams(ps []models.Pollutant) (string, error) {
	if ps == nil {
		ps = []models.Pollutant{}
	}
	b, err := json.Marshal(ps)
	return string(b), err
}

func statusOrActive(s models.StationStatus) string {
	if s == "" {
		return string(models.StatusActive)
	}
	return string(s)
}

// FindStationByID returns nil when the station does not exist.
func (s *Store) FindStationByID(ctx context.Context, stationID string) (*models.Station, error) {
	st, err := s.getStation(ctx, s.db, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getStation(ctx context.Context, q queryer, stationID string) (models.Station, error) {
	return scanStation(q.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE station_id = ?`, stationID))
}

// UpsertStation inserts the station or overwrites its feed-carried fields.
// Status and last_measurement_at are left untouched on update.
func (s *Store) UpsertStation(ctx context.Context, st models.Station) (bool, error) {
	params, err := encodeParams(st.MeasuredParameters)
	if err != nil {
		return false, err
	}
	now := formatTime(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations WHERE station_id = ?`, st.StationID).Scan(&exists); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO stations (station_id, city_name, station_name, local_name, timezone, lon, lat,
  platform_name, measured_parameters, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(station_id) DO UPDATE SET
  city_name = excluded.city_name,
  station_name = excluded.station_name,
  local_name = excluded.local_name,
  timezone = excluded.timezone,
  lon = excluded.lon,
  lat = excluded.lat,
  platform_name = excluded.platform_name,
  measured_parameters = excluded.measured_parameters,
  updated_at = excluded.updated_at`,
		st.StationID, st.CityName, st.StationName, st.LocalName, st.Timezone,
		st.Location.Longitude, st.Location.Latitude, st.PlatformName, params,
		statusOrActive(st.Status), now, now,
	)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return exists == 0, nil
}

// CreateStation inserts a new station and fails with reconcile.ErrConflict
// when the id is taken.
func (s *Store) CreateStation(ctx context.Context, st models.Station) (models.Station, error) {
	params, err := encodeParams(st.MeasuredParameters)
	if err != nil {
		return models.Station{}, err
	}
	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
INSERT INTO stations (station_id, city_name, station_name, local_name, timezone, lon, lat,
  platform_name, measured_parameters, status, last_measurement_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.StationID, st.CityName, st.StationName, st.LocalName, st.Timezone,
		st.Location.Longitude, st.Location.Latitude, st.PlatformName, params,
		statusOrActive(st.Status), nullTime(st.LastMeasurementAt), now, now,
	)
	if err != nil {
		return models.Station{}, classify(err)
	}
	out, err := s.getStation(ctx, s.db, st.StationID)
	return out, classify(err)
}

// UpdateStation replaces every mutable field of an existing station. An
// empty status keeps the stored one.
func (s *Store) UpdateStation(ctx context.Context, st models.Station) (models.Station, error) {
	params, err := encodeParams(st.MeasuredParameters)
	if err != nil {
		return models.Station{}, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE stations
SET city_name = ?, station_name = ?, local_name = ?, timezone = ?, lon = ?, lat = ?,
  platform_name = ?, measured_parameters = ?, status = COALESCE(NULLIF(?, ''), status), updated_at = ?
WHERE station_id = ?`,
		st.CityName, st.StationName, st.LocalName, st.Timezone,
		st.Location.Longitude, st.Location.Latitude, st.PlatformName, params,
		string(st.Status), formatTime(s.now()), st.StationID,
	)
	if err != nil {
		return models.Station{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Station{}, reconcile.ErrNotFound
	}
	out, err := s.getStation(ctx, s.db, st.StationID)
	return out, classify(err)
}

// DeactivateStation marks a station inactive. Its measurements are kept.
func (s *Store) DeactivateStation(ctx context.Context, stationID string) (models.Station, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET status = 'inactive', updated_at = ? WHERE station_id = ?`,
		formatTime(s.now()), stationID)
	if err != nil {
		return models.Station{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Station{}, reconcile.ErrNotFound
	}
	out, err := s.getStation(ctx, s.db, stationID)
	return out, classify(err)
}

// TouchLastMeasurement stamps the station with the time of its latest sync.
func (s *Store) TouchLastMeasurement(ctx context.Context, stationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stations SET last_measurement_at = ?, updated_at = ? WHERE station_id = ?`,
		formatTime(at), formatTime(s.now()), stationID)
	return err
}

// ListStations returns one page of stations ordered by city and name, plus
// the total number of matches. A zero limit returns every match.
func (s *Store) ListStations(ctx context.Context, f models.StationFilter) ([]models.Station, int, error) {
	var (
		where []string
		args  []any
	)
	if f.City != "" {
		where = append(where, "city_name LIKE ?")
		args = append(args, "%"+f.City+"%")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + stationColumns + ` FROM stations` + clause + ` ORDER BY city_name, station_name`
	query += pageClause(&args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, 0, err
		}
		stations = append(stations, st)
	}
	return stations, total, rows.Err()
}
