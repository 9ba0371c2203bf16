package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

const stationColumns = `station_id, city_name, station_name, local_name, timezone, lon, lat,
    platform_name, measured_parameters, status, last_measurement_at, created_at, updated_at`

func scanStation(row scanner) (models.Station, error) {
	var (
		st     models.Station
		params []string
		status string
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
		&st.LastMeasurementAt,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return st, err
	}
	st.Status = models.StationStatus(status)
	st.MeasuredParameters = make([]models.Pollutant, 0, len(params))
	for _, p := range params {
		st.MeasuredParameters = append(st.MeasuredParameters, models.Pollutant(p))
	}
	return st, nil
}

func paramStrings(ps []models.Pollutant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}

func statusOrActive(s models.StationStatus) string {
	if s == "" {
		return string(models.StatusActive)
	}
	return string(s)
}

// FindStationByID returns nil when the station does not exist.
func (s *Store) FindStationByID(ctx context.Context, stationID string) (*models.Station, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stationColumns+` FROM eco.stations WHERE station_id = $1`, stationID)
	st, err := scanStation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Status and last_measurement_at are owned by the store, the feed never
// overwrites them.
const upsertStationSQL = `
INSERT INTO eco.stations (station_id, city_name, station_name, local_name, timezone, lon, lat,
    platform_name, measured_parameters, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
ON CONFLICT (station_id) DO UPDATE
SET city_name = EXCLUDED.city_name,
    station_name = EXCLUDED.station_name,
    local_name = EXCLUDED.local_name,
    timezone = EXCLUDED.timezone,
    lon = EXCLUDED.lon,
    lat = EXCLUDED.lat,
    platform_name = EXCLUDED.platform_name,
    measured_parameters = EXCLUDED.measured_parameters,
    updated_at = NOW()
RETURNING (xmax = 0) AS inserted`

// UpsertStation inserts the station or overwrites its feed-carried fields.
func (s *Store) UpsertStation(ctx context.Context, st models.Station) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, upsertStationSQL,
		st.StationID,
		st.CityName,
		st.StationName,
		st.LocalName,
		st.Timezone,
		st.Location.Longitude,
		st.Location.Latitude,
		st.PlatformName,
		paramStrings(st.MeasuredParameters),
		statusOrActive(st.Status),
	).Scan(&inserted)
	return inserted, err
}

// CreateStation inserts a new station and fails with reconcile.ErrConflict
// when the id is taken.
func (s *Store) CreateStation(ctx context.Context, st models.Station) (models.Station, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO eco.stations (station_id, city_name, station_name, local_name, timezone, lon, lat,
    platform_name, measured_parameters, status, last_measurement_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
RETURNING `+stationColumns,
		st.StationID,
		st.CityName,
		st.StationName,
		st.LocalName,
		st.Timezone,
		st.Location.Longitude,
		st.Location.Latitude,
		st.PlatformName,
		paramStrings(st.MeasuredParameters),
		statusOrActive(st.Status),
		st.LastMeasurementAt,
	)
	out, err := scanStation(row)
	return out, classify(err)
}

// UpdateStation replaces every mutable field of an existing station. An
// empty status keeps the stored one.
func (s *Store) UpdateStation(ctx context.Context, st models.Station) (models.Station, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE eco.stations
SET city_name = $2,
    station_name = $3,
    local_name = $4,
    timezone = $5,
    lon = $6,
    lat = $7,
    platform_name = $8,
    measured_parameters = $9,
    status = COALESCE(NULLIF($10::text, ''), status),
    updated_at = NOW()
WHERE station_id = $1
RETURNING `+stationColumns,
		st.StationID,
		st.CityName,
		st.StationName,
		st.LocalName,
		st.Timezone,
		st.Location.Longitude,
		st.Location.Latitude,
		st.PlatformName,
		paramStrings(st.MeasuredParameters),
		string(st.Status),
	)
	out, err := scanStation(row)
	return out, classify(err)
}

// DeactivateStation marks a station inactive. Its measurements are kept.
func (s *Store) DeactivateStation(ctx context.Context, stationID string) (models.Station, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE eco.stations SET status = 'inactive', updated_at = NOW()
WHERE station_id = $1
RETURNING `+stationColumns, stationID)
	out, err := scanStation(row)
	return out, classify(err)
}

// TouchLastMeasurement stamps the station with the time of its latest sync.
func (s *Store) TouchLastMeasurement(ctx context.Context, stationID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
UPDATE eco.stations SET last_measurement_at = $2, updated_at = NOW()
WHERE station_id = $1`, stationID, at)
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
		args = append(args, "%"+f.City+"%")
		where = append(where, fmt.Sprintf("city_name ILIKE $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM eco.stations`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + stationColumns + ` FROM eco.stations` + clause + ` ORDER BY city_name, station_name`
	query += pageClause(&args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
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

func pageClause(args *[]any, limit, offset int) string {
	out := ""
	if limit > 0 {
		*args = append(*args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return out
}
