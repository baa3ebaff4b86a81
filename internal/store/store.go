package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default runtime settings seeded when the settings row is missing.
const (
	DefaultIntervalMinutes  = 30
	DefaultRefreshSeconds   = 60
	DefaultFreshnessMinutes = 30
)

var (
	// ErrNotFound is returned when a named location does not exist.
	ErrNotFound = errors.New("location not found")
	// ErrNoCoordinates is returned when a location exists but has no
	// resolved coordinates yet; such locations are never fetched.
	ErrNoCoordinates = errors.New("location has no coordinates")
	// ErrNoMeasurement is returned when a location has no stored measurement.
	ErrNoMeasurement = errors.New("no measurement recorded")
)

// Location is a named place measurements are collected for.
// Name is unique; lookups are exact-match on it. Lat/Lon stay nil until
// geocoding resolves them, and incomplete locations are skipped everywhere.
type Location struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// HasCoordinates reports whether both coordinates are set.
func (l Location) HasCoordinates() bool { return l.Lat != nil && l.Lon != nil }

// Measurement is one weather observation for a location.
// CreatedAt is stamped by the store (UTC) when zero on insert.
type Measurement struct {
	ID              int64     `json:"id"`
	Location        string    `json:"location"`
	Temperature     float64   `json:"temperature"`
	Humidity        int       `json:"humidity"`
	AQI             int       `json:"aqi"`
	RainProbability int       `json:"rain_probability"`
	RainMM          float64   `json:"rain_mm"`
	CreatedAt       time.Time `json:"created_at"`
}

// Settings is the singleton runtime configuration row. It is read back from
// the store on every use so changes apply without restart.
type Settings struct {
	IntervalMinutes  int       `json:"interval_minutes"`
	RefreshSeconds   int       `json:"refresh_seconds"`
	FreshnessMinutes int       `json:"freshness_minutes"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultSettings returns the values seeded into an empty store.
func DefaultSettings() Settings {
	return Settings{
		IntervalMinutes:  DefaultIntervalMinutes,
		RefreshSeconds:   DefaultRefreshSeconds,
		FreshnessMinutes: DefaultFreshnessMinutes,
	}
}

// Validate rejects values that must never reach the settings row.
func (s Settings) Validate() error {
	if s.IntervalMinutes < 1 {
		return fmt.Errorf("interval_minutes must be >= 1, got %d", s.IntervalMinutes)
	}
	if s.RefreshSeconds < 1 {
		return fmt.Errorf("refresh_seconds must be >= 1, got %d", s.RefreshSeconds)
	}
	if s.FreshnessMinutes < 0 {
		return fmt.Errorf("freshness_minutes must be >= 0, got %d", s.FreshnessMinutes)
	}
	return nil
}

// FreshnessWindow returns the freshness window as a duration.
func (s Settings) FreshnessWindow() time.Duration {
	return time.Duration(s.FreshnessMinutes) * time.Minute
}

// Interval returns the collection interval as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Extreme is the per-location MIN/MAX of one metric over a time range.
type Extreme struct {
	Location string  `json:"location"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// metricColumns whitelists summary metrics; values are the column names
// interpolated into summary queries.
var metricColumns = map[string]string{
	"temperature":      "temperature",
	"humidity":         "humidity",
	"aqi":              "aqi",
	"rain_probability": "rain_probability",
	"rain_mm":          "rain_mm",
}

// MetricColumn maps a metric name to its measurement column.
// Only whitelisted names are accepted.
func MetricColumn(metric string) (string, bool) {
	col, ok := metricColumns[metric]
	return col, ok
}

// Metrics lists the metric names accepted by MetricColumn.
func Metrics() []string {
	return []string{"temperature", "humidity", "aqi", "rain_probability", "rain_mm"}
}

// Store is the persistence boundary for locations, measurements and the
// settings row. Implementations must be safe for concurrent use.
type Store interface {
	// EnsureSchema creates missing tables and indexes and seeds the
	// settings row with seed iff the row does not exist. Idempotent.
	EnsureSchema(ctx context.Context, seed Settings) error

	UpsertLocation(ctx context.Context, loc Location) (Location, error)
	DeleteLocation(ctx context.Context, id int64) error
	GetLocation(ctx context.Context, name string) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)

	AppendMeasurement(ctx context.Context, m Measurement) (Measurement, error)
	LatestMeasurement(ctx context.Context, location string) (Measurement, error)
	// MeasurementsBetween returns rows in [from, to] ordered by created_at
	// ascending; empty location means all locations.
	MeasurementsBetween(ctx context.Context, location string, from, to time.Time) ([]Measurement, error)
	// MetricExtremes returns per-location MIN/MAX of a whitelisted metric
	// over [from, to]; empty location means all locations.
	MetricExtremes(ctx context.Context, location, metric string, from, to time.Time) ([]Extreme, error)
	PurgeMeasurementsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ReadSettings(ctx context.Context) (Settings, error)
	WriteSettings(ctx context.Context, s Settings) (Settings, error)

	Ping(ctx context.Context) error
	Close() error
}
