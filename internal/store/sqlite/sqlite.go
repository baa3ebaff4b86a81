package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meteolab/meteod/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		d.SetMaxOpenConns(1)
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context, seed store.Settings) error {
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("settings seed: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS locations(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			lat REAL NULL,
			lon REAL NULL
		);`,
		`CREATE TABLE IF NOT EXISTS measurements(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location TEXT NOT NULL,
			temperature REAL NOT NULL,
			humidity INTEGER NOT NULL,
			aqi INTEGER NOT NULL,
			rain_probability INTEGER NOT NULL,
			rain_mm REAL NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_location_created ON measurements(location, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS settings(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			interval_minutes INTEGER NOT NULL,
			refresh_seconds INTEGER NOT NULL,
			freshness_minutes INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings(id, interval_minutes, refresh_seconds, freshness_minutes, updated_at)
		VALUES(1, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING;`,
		seed.IntervalMinutes, seed.RefreshSeconds, seed.FreshnessMinutes, time.Now().UTC())
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) UpsertLocation(ctx context.Context, loc store.Location) (store.Location, error) {
	name := strings.TrimSpace(loc.Name)
	if name == "" {
		return store.Location{}, errors.New("empty location name")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations(name, lat, lon)
		VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			lat=excluded.lat,
			lon=excluded.lon;`,
		name, loc.Lat, loc.Lon)
	if err != nil {
		return store.Location{}, err
	}
	return s.GetLocation(ctx, name)
}

func (s *DB) DeleteLocation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id=?;`, id)
	return err
}

func (s *DB) GetLocation(ctx context.Context, name string) (store.Location, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, lat, lon FROM locations WHERE name=?;`, name)
	var loc store.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Location{}, store.ErrNotFound
		}
		return store.Location{}, err
	}
	return loc, nil
}

func (s *DB) ListLocations(ctx context.Context) ([]store.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lat, lon FROM locations ORDER BY name ASC;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Location, 0)
	for rows.Next() {
		var loc store.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lon); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *DB) AppendMeasurement(ctx context.Context, m store.Measurement) (store.Measurement, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	} else {
		m.CreatedAt = m.CreatedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements(location, temperature, humidity, aqi, rain_probability, rain_mm, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		m.Location, m.Temperature, m.Humidity, m.AQI, m.RainProbability, m.RainMM, m.CreatedAt)
	if err != nil {
		return store.Measurement{}, err
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return m, nil
}

func (s *DB) LatestMeasurement(ctx context.Context, location string) (store.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, location, temperature, humidity, aqi, rain_probability, rain_mm, created_at
		FROM measurements
		WHERE location=?
		ORDER BY created_at DESC, id DESC
		LIMIT 1;`, location)
	var m store.Measurement
	if err := row.Scan(&m.ID, &m.Location, &m.Temperature, &m.Humidity, &m.AQI, &m.RainProbability, &m.RainMM, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Measurement{}, store.ErrNoMeasurement
		}
		return store.Measurement{}, err
	}
	return m, nil
}

func (s *DB) MeasurementsBetween(ctx context.Context, location string, from, to time.Time) ([]store.Measurement, error) {
	q := `
		SELECT id, location, temperature, humidity, aqi, rain_probability, rain_mm, created_at
		FROM measurements
		WHERE created_at >= ? AND created_at <= ?`
	args := []any{from.UTC(), to.UTC()}
	if location != "" {
		q += ` AND location = ?`
		args = append(args, location)
	}
	q += ` ORDER BY created_at ASC, id ASC;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMeasurements(rows)
}

func (s *DB) MetricExtremes(ctx context.Context, location, metric string, from, to time.Time) ([]store.Extreme, error) {
	col, ok := store.MetricColumn(metric)
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	q := fmt.Sprintf(`
		SELECT location, CAST(MIN(%s) AS REAL), CAST(MAX(%s) AS REAL)
		FROM measurements
		WHERE created_at >= ? AND created_at <= ?`, col, col)
	args := []any{from.UTC(), to.UTC()}
	if location != "" {
		q += ` AND location = ?`
		args = append(args, location)
	}
	q += ` GROUP BY location ORDER BY location ASC;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Extreme, 0)
	for rows.Next() {
		var e store.Extreme
		if err := rows.Scan(&e.Location, &e.Min, &e.Max); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) PurgeMeasurementsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE created_at < ?;`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DB) ReadSettings(ctx context.Context) (store.Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT interval_minutes, refresh_seconds, freshness_minutes, updated_at
		FROM settings WHERE id=1;`)
	var st store.Settings
	if err := row.Scan(&st.IntervalMinutes, &st.RefreshSeconds, &st.FreshnessMinutes, &st.UpdatedAt); err != nil {
		return store.Settings{}, err
	}
	return st, nil
}

func (s *DB) WriteSettings(ctx context.Context, st store.Settings) (store.Settings, error) {
	if err := st.Validate(); err != nil {
		return store.Settings{}, err
	}
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings(id, interval_minutes, refresh_seconds, freshness_minutes, updated_at)
		VALUES(1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interval_minutes=excluded.interval_minutes,
			refresh_seconds=excluded.refresh_seconds,
			freshness_minutes=excluded.freshness_minutes,
			updated_at=excluded.updated_at;`,
		st.IntervalMinutes, st.RefreshSeconds, st.FreshnessMinutes, st.UpdatedAt)
	if err != nil {
		return store.Settings{}, err
	}
	return st, nil
}

func scanMeasurements(rows *sql.Rows) ([]store.Measurement, error) {
	out := make([]store.Measurement, 0)
	for rows.Next() {
		var m store.Measurement
		if err := rows.Scan(&m.ID, &m.Location, &m.Temperature, &m.Humidity, &m.AQI, &m.RainProbability, &m.RainMM, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
