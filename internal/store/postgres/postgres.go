package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/meteolab/meteod/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context, seed store.Settings) error {
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("settings seed: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS locations(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			lat DOUBLE PRECISION NULL,
			lon DOUBLE PRECISION NULL
		);`,
		`CREATE TABLE IF NOT EXISTS measurements(
			id BIGSERIAL PRIMARY KEY,
			location TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			humidity INTEGER NOT NULL,
			aqi INTEGER NOT NULL,
			rain_probability INTEGER NOT NULL,
			rain_mm DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_location_created ON measurements(location, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS settings(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			interval_minutes INTEGER NOT NULL,
			refresh_seconds INTEGER NOT NULL,
			freshness_minutes INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings(id, interval_minutes, refresh_seconds, freshness_minutes, updated_at)
		VALUES(1, $1, $2, $3, $4)
		ON CONFLICT(id) DO NOTHING;`,
		seed.IntervalMinutes, seed.RefreshSeconds, seed.FreshnessMinutes, time.Now().UTC())
	return err
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) UpsertLocation(ctx context.Context, loc store.Location) (store.Location, error) {
	name := strings.TrimSpace(loc.Name)
	if name == "" {
		return store.Location{}, errors.New("empty location name")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO locations(name, lat, lon)
		VALUES($1, $2, $3)
		ON CONFLICT(name) DO UPDATE SET
			lat=EXCLUDED.lat,
			lon=EXCLUDED.lon;`,
		name, loc.Lat, loc.Lon)
	if err != nil {
		return store.Location{}, err
	}
	return p.GetLocation(ctx, name)
}

func (p *DB) DeleteLocation(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM locations WHERE id=$1;`, id)
	return err
}

func (p *DB) GetLocation(ctx context.Context, name string) (store.Location, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, name, lat, lon FROM locations WHERE name=$1;`, name)
	var loc store.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Location{}, store.ErrNotFound
		}
		return store.Location{}, err
	}
	return loc, nil
}

func (p *DB) ListLocations(ctx context.Context) ([]store.Location, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, lat, lon FROM locations ORDER BY name ASC;`)
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

func (p *DB) AppendMeasurement(ctx context.Context, m store.Measurement) (store.Measurement, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	} else {
		m.CreatedAt = m.CreatedAt.UTC()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO measurements(location, temperature, humidity, aqi, rain_probability, rain_mm, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;`,
		m.Location, m.Temperature, m.Humidity, m.AQI, m.RainProbability, m.RainMM, m.CreatedAt)
	if err := row.Scan(&m.ID); err != nil {
		return store.Measurement{}, err
	}
	return m, nil
}

func (p *DB) LatestMeasurement(ctx context.Context, location string) (store.Measurement, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, location, temperature, humidity, aqi, rain_probability, rain_mm, created_at
		FROM measurements
		WHERE location=$1
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

func (p *DB) MeasurementsBetween(ctx context.Context, location string, from, to time.Time) ([]store.Measurement, error) {
	q := `
		SELECT id, location, temperature, humidity, aqi, rain_probability, rain_mm, created_at
		FROM measurements
		WHERE created_at >= $1 AND created_at <= $2`
	args := []any{from.UTC(), to.UTC()}
	if location != "" {
		q += ` AND location = $3`
		args = append(args, location)
	}
	q += ` ORDER BY created_at ASC, id ASC;`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMeasurements(rows)
}

func (p *DB) MetricExtremes(ctx context.Context, location, metric string, from, to time.Time) ([]store.Extreme, error) {
	col, ok := store.MetricColumn(metric)
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	q := fmt.Sprintf(`
		SELECT location, MIN(%s)::double precision, MAX(%s)::double precision
		FROM measurements
		WHERE created_at >= $1 AND created_at <= $2`, col, col)
	args := []any{from.UTC(), to.UTC()}
	if location != "" {
		q += ` AND location = $3`
		args = append(args, location)
	}
	q += ` GROUP BY location ORDER BY location ASC;`
	rows, err := p.db.QueryContext(ctx, q, args...)
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

func (p *DB) PurgeMeasurementsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM measurements WHERE created_at < $1;`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *DB) ReadSettings(ctx context.Context) (store.Settings, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT interval_minutes, refresh_seconds, freshness_minutes, updated_at
		FROM settings WHERE id=1;`)
	var st store.Settings
	if err := row.Scan(&st.IntervalMinutes, &st.RefreshSeconds, &st.FreshnessMinutes, &st.UpdatedAt); err != nil {
		return store.Settings{}, err
	}
	return st, nil
}

func (p *DB) WriteSettings(ctx context.Context, st store.Settings) (store.Settings, error) {
	if err := st.Validate(); err != nil {
		return store.Settings{}, err
	}
	st.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings(id, interval_minutes, refresh_seconds, freshness_minutes, updated_at)
		VALUES(1, $1, $2, $3, $4)
		ON CONFLICT(id) DO UPDATE SET
			interval_minutes=EXCLUDED.interval_minutes,
			refresh_seconds=EXCLUDED.refresh_seconds,
			freshness_minutes=EXCLUDED.freshness_minutes,
			updated_at=EXCLUDED.updated_at;`,
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
