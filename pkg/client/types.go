package client

import "time"

// SchedulerStatus is the scheduler snapshot returned by /status.
type SchedulerStatus struct {
	Status          string     `json:"status"`
	NextRun         *time.Time `json:"next_run"`
	Paused          bool       `json:"paused"`
	IntervalMinutes int        `json:"interval_minutes"`
}

// Settings is the daemon's runtime settings row.
type Settings struct {
	IntervalMinutes  int       `json:"interval_minutes"`
	RefreshSeconds   int       `json:"refresh_seconds"`
	FreshnessMinutes int       `json:"freshness_minutes"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SettingsUpdate is a partial settings change; nil fields keep their
// current values.
type SettingsUpdate struct {
	IntervalMinutes  *int `json:"interval_minutes,omitempty"`
	RefreshSeconds   *int `json:"refresh_seconds,omitempty"`
	FreshnessMinutes *int `json:"freshness_minutes,omitempty"`
}

// Location is a place the daemon collects measurements for.
type Location struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// LocationRequest adds or updates a location. Either the name or the
// coordinate pair may be omitted; the daemon geocodes the missing half.
type LocationRequest struct {
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// LiveEntry is one location of the live feed.
type LiveEntry struct {
	Location        string     `json:"location"`
	Temperature     float64    `json:"temperature"`
	Humidity        int        `json:"humidity"`
	AQI             int        `json:"aqi"`
	RainProbability int        `json:"rain_probability"`
	RainMM          float64    `json:"rain_mm"`
	CreatedAt       *time.Time `json:"created_at"`
	Source          string     `json:"source,omitempty"`
	Stale           bool       `json:"stale,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Measurement is one stored weather observation.
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

// Extreme is a per-location MIN/MAX summary of one metric.
type Extreme struct {
	Location string  `json:"location"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// HistoryQuery selects history rows or extremes.
type HistoryQuery struct {
	Location string
	Hours    int    // 0 means the server default (24)
	Metric   string // set to get per-location extremes instead of rows
}

// CollectResponse reports whether a triggered pass actually started.
type CollectResponse struct {
	OK      bool `json:"ok"`
	Started bool `json:"started"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
