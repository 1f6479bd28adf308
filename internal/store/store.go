// Package store persists canonical track data in SQLite: the wholesale-
// replaced live snapshot, the append-only ingest-fingerprint history, and
// the last generated forecast set.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS storm_live (
	id          TEXT    NOT NULL,
	time        TEXT    NOT NULL,
	lat         REAL    NOT NULL,
	lon         REAL    NOT NULL,
	wind_speed  INTEGER NOT NULL,
	pressure    REAL,
	hash        TEXT    NOT NULL,
	ingest_time TEXT    NOT NULL,
	source      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_storm_live_id ON storm_live(id);

CREATE TABLE IF NOT EXISTS ingest_history (
	hash TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	time TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_cache (
	storm_id       TEXT    NOT NULL,
	horizon_hours  INTEGER NOT NULL,
	lat            REAL    NOT NULL,
	lon            REAL    NOT NULL,
	wind_speed     REAL    NOT NULL,
	predicted_time TEXT    NOT NULL,
	model          TEXT    NOT NULL,
	reflected      INTEGER NOT NULL,
	created_at     TEXT    NOT NULL
);
`

// Store wraps the SQLite database. A single connection enforces the
// single-writer discipline the ingest gate's check-then-swap requires.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// production pragmas and schema. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasFingerprint reports whether an ingest batch with this digest was seen
// before.
func (s *Store) HasFingerprint(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ingest_history WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup fingerprint: %w", err)
	}
	return n > 0, nil
}

// ReplaceSnapshot atomically swaps the live table for the new canonical set
// and appends the fingerprint to history, in one transaction. The live
// delete-then-insert runs before the history append: if the transaction
// machinery ever degrades, a missing history row only costs a redundant
// re-ingest, while a stale live table would serve wrong data indefinitely.
func (s *Store) ReplaceSnapshot(ctx context.Context, entries []domain.TrackEntry, hash string, payload []byte, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot swap: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM storm_live`); err != nil {
		return fmt.Errorf("clear live snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO storm_live (id, time, lat, lon, wind_speed, pressure, hash, ingest_time, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	ingestTime := at.UTC().Format(time.RFC3339)
	for _, e := range entries {
		var pressure any
		if e.Pressure != nil {
			pressure = *e.Pressure
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Time.UTC().Format(time.RFC3339), e.Lat, e.Lon, e.WindSpeed,
			pressure, hash, ingestTime, e.Source,
		); err != nil {
			return fmt.Errorf("insert snapshot row %s: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ingest_history (hash, data, time) VALUES (?, ?, ?)`,
		hash, payload, ingestTime,
	); err != nil {
		return fmt.Errorf("append ingest history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot swap: %w", err)
	}
	return nil
}

// LiveStorms returns the current snapshot in canonical (id, time, source)
// order.
func (s *Store) LiveStorms(ctx context.Context) ([]domain.TrackEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, time, lat, lon, wind_speed, pressure, source
		FROM storm_live ORDER BY id, time, source`)
	if err != nil {
		return nil, fmt.Errorf("query live snapshot: %w", err)
	}
	defer rows.Close()

	var entries []domain.TrackEntry
	for rows.Next() {
		var (
			e        domain.TrackEntry
			stamp    string
			pressure sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &stamp, &e.Lat, &e.Lon, &e.WindSpeed, &pressure, &e.Source); err != nil {
			return nil, fmt.Errorf("scan live row: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("parse live row time %q: %w", stamp, err)
		}
		if pressure.Valid {
			e.Pressure = &pressure.Float64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveForecasts replaces the forecast cache with the given result set.
func (s *Store) SaveForecasts(ctx context.Context, results []domain.ForecastResult, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin forecast save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM forecast_cache`); err != nil {
		return fmt.Errorf("clear forecast cache: %w", err)
	}
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_cache (storm_id, horizon_hours, lat, lon, wind_speed, predicted_time, model, reflected, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.StormID, r.HorizonHours, r.Lat, r.Lon, r.WindSpeed,
			r.PredictedTime.UTC().Format(time.RFC3339), r.ModelTag, r.Reflected,
			at.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert forecast row %s/%dh: %w", r.StormID, r.HorizonHours, err)
		}
	}
	return tx.Commit()
}

// LatestForecasts returns the cached forecast set, oldest horizon first
// within each storm.
func (s *Store) LatestForecasts(ctx context.Context) ([]domain.ForecastResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT storm_id, horizon_hours, lat, lon, wind_speed, predicted_time, model, reflected
		FROM forecast_cache ORDER BY storm_id, horizon_hours`)
	if err != nil {
		return nil, fmt.Errorf("query forecast cache: %w", err)
	}
	defer rows.Close()

	var results []domain.ForecastResult
	for rows.Next() {
		var (
			r     domain.ForecastResult
			stamp string
		)
		if err := rows.Scan(&r.StormID, &r.HorizonHours, &r.Lat, &r.Lon, &r.WindSpeed, &stamp, &r.ModelTag, &r.Reflected); err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		r.PredictedTime, err = time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("parse forecast time %q: %w", stamp, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
