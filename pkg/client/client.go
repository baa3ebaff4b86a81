// Package client is the HTTP client for the meteod control API, used by
// the CLI and embeddable in other programs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running meteod daemon.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	APIToken string        // sent as a bearer token when set
	Timeout  time.Duration
	Logger   *slog.Logger // optional logger for client operations
}

// DefaultConfig returns the configuration matching the daemon defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8085",
		Timeout: 10 * time.Second,
	}
}

// New creates a meteod API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8085"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		token:   config.APIToken,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks whether the daemon answers on its control surface.
func (c *Client) IsReachable(ctx context.Context) bool {
	var resp ErrorResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
	reachable := err == nil
	c.logger.Debug("Daemon reachability check", "reachable", reachable)
	return reachable
}

// Status returns the scheduler snapshot.
func (c *Client) Status(ctx context.Context) (SchedulerStatus, error) {
	var st SchedulerStatus
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Pause stops future scheduled collection passes.
func (c *Client) Pause(ctx context.Context) (SchedulerStatus, error) {
	var st SchedulerStatus
	err := c.do(ctx, http.MethodPost, "/scheduler/pause", nil, &st)
	return st, err
}

// Resume schedules collection anew from now.
func (c *Client) Resume(ctx context.Context) (SchedulerStatus, error) {
	var st SchedulerStatus
	err := c.do(ctx, http.MethodPost, "/scheduler/resume", nil, &st)
	return st, err
}

// Collect triggers one collection pass immediately. Started is false
// when a pass was already in flight.
func (c *Client) Collect(ctx context.Context) (CollectResponse, error) {
	var resp CollectResponse
	err := c.do(ctx, http.MethodPost, "/collect", nil, &resp)
	return resp, err
}

// GetSettings reads the runtime settings row.
func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// UpdateSettings applies a partial settings change and returns the
// resulting row.
func (c *Client) UpdateSettings(ctx context.Context, upd SettingsUpdate) (Settings, error) {
	c.logger.Debug("Updating settings")
	var s Settings
	err := c.do(ctx, http.MethodPut, "/settings", upd, &s)
	return s, err
}

// Locations lists all stored locations.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var locs []Location
	err := c.do(ctx, http.MethodGet, "/locations", nil, &locs)
	return locs, err
}

// AddLocation adds or updates a location, letting the daemon geocode
// whichever half of the request is missing.
func (c *Client) AddLocation(ctx context.Context, req LocationRequest) (Location, error) {
	c.logger.Debug("Adding location", "name", req.Name)
	var loc Location
	err := c.do(ctx, http.MethodPost, "/locations", req, &loc)
	return loc, err
}

// DeleteLocation removes a location by id.
func (c *Client) DeleteLocation(ctx context.Context, id int64) error {
	c.logger.Debug("Deleting location", "id", id)
	return c.do(ctx, http.MethodDelete, "/locations/"+strconv.FormatInt(id, 10), nil, nil)
}

// Live resolves every location.
func (c *Client) Live(ctx context.Context) ([]LiveEntry, error) {
	var feed []LiveEntry
	err := c.do(ctx, http.MethodGet, "/live", nil, &feed)
	return feed, err
}

// LiveOne resolves a single location by name.
func (c *Client) LiveOne(ctx context.Context, name string) (LiveEntry, error) {
	var entry LiveEntry
	err := c.do(ctx, http.MethodGet, "/live/"+url.PathEscape(name), nil, &entry)
	return entry, err
}

// History returns the raw measurement rows matching the query. The
// query's Metric must be empty; use Extremes for summaries.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]Measurement, error) {
	var rows []Measurement
	err := c.do(ctx, http.MethodGet, "/history?"+q.values().Encode(), nil, &rows)
	return rows, err
}

// Extremes returns the per-location MIN/MAX of the query's metric.
func (c *Client) Extremes(ctx context.Context, q HistoryQuery) ([]Extreme, error) {
	if q.Metric == "" {
		return nil, fmt.Errorf("extremes query requires a metric")
	}
	var ext []Extreme
	err := c.do(ctx, http.MethodGet, "/history?"+q.values().Encode(), nil, &ext)
	return ext, err
}

func (q HistoryQuery) values() url.Values {
	v := url.Values{}
	if q.Location != "" {
		v.Set("location", q.Location)
	}
	if q.Hours > 0 {
		v.Set("hours", strconv.Itoa(q.Hours))
	}
	if q.Metric != "" {
		v.Set("metric", q.Metric)
	}
	return v
}

// do performs a request and decodes the response into out (when non-nil).
// Non-2xx responses are turned into errors carrying the API error message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
