// Package sqlitestore persists stations and measurements in a single SQLite
// file. It backs local runs and tests where no Postgres is available.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
)

// Times are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS stations (
  station_id          TEXT PRIMARY KEY,
  city_name           TEXT NOT NULL DEFAULT '',
  station_name        TEXT NOT NULL DEFAULT '',
  local_name          TEXT NOT NULL DEFAULT '',
  timezone            TEXT NOT NULL DEFAULT '',
  lon                 REAL NOT NULL CHECK (lon BETWEEN -180 AND 180),
  lat                 REAL NOT NULL CHECK (lat BETWEEN -90 AND 90),
  platform_name       TEXT NOT NULL DEFAULT '',
  measured_parameters TEXT NOT NULL DEFAULT '[]',
  status              TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
  last_measurement_at TEXT,
  created_at          TEXT NOT NULL,
  updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stations_city_name ON stations(city_name, station_name);

CREATE TABLE IF NOT EXISTS measurements (
  station_id       TEXT NOT NULL,
  measurement_time TEXT NOT NULL,
  pollutants       TEXT NOT NULL,
  source           TEXT NOT NULL DEFAULT 'SaveEcoBot',
  import_time      TEXT NOT NULL,
  original_data    TEXT,
  processing_notes TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (station_id, measurement_time)
);
CREATE INDEX IF NOT EXISTS idx_measurements_time ON measurements(measurement_time);
`

// Store is a SQLite-backed station and measurement store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" yields a private in-memory database.
func Open(path string) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// Every connection to :memory: sees its own database; a single
	// connection also serialises writers on file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.Join(reconcile.ErrConflict, err)
		case sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(se.Error(), "UNIQUE constraint failed") {
				return errors.Join(reconcile.ErrConflict, err)
			}
		}
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

type scanner interface {
	Scan(dest ...any) error
}

func pageClause(args *[]any, limit, offset int) string {
	out := ""
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1
		}
		*args = append(*args, limit)
		out += " LIMIT ?"
	}
	if offset > 0 {
		*args = append(*args, offset)
		out += " OFFSET ?"
	}
	return out
}
