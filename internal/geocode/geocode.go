package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meteolab/meteod/internal/upstream"
	"github.com/sony/gobreaker"
)

const defaultTimeout = 10 * time.Second

// ErrNoMatch is returned when the upstream has no answer for the query.
var ErrNoMatch = errors.New("geocode: no match")

// Point is a geographic coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Config controls the upstream endpoints and the per-call HTTP budget.
type Config struct {
	GeocodingBase string
	NominatimBase string
	UserAgent     string
	Timeout       time.Duration
}

// Client resolves location names to coordinates via the open-meteo
// geocoding API and coordinates to names via OSM Nominatim.
type Client struct {
	geoBase   string
	nomBase   string
	userAgent string
	httpCfg   upstream.Config
	geoCB     *gobreaker.CircuitBreaker
	nomCB     *gobreaker.CircuitBreaker
}

func New(cfg Config) *Client {
	if cfg.GeocodingBase == "" {
		cfg.GeocodingBase = "https://geocoding-api.open-meteo.com"
	}
	if cfg.NominatimBase == "" {
		cfg.NominatimBase = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "meteod/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		geoBase:   strings.TrimRight(cfg.GeocodingBase, "/"),
		nomBase:   strings.TrimRight(cfg.NominatimBase, "/"),
		userAgent: cfg.UserAgent,
		httpCfg: upstream.Config{
			Client:  &http.Client{Timeout: cfg.Timeout},
			Backoff: upstream.DefaultBackoff(),
		},
		geoCB: upstream.NewBreaker("openmeteo-geocoding"),
		nomCB: upstream.NewBreaker("nominatim"),
	}
}

// Forward resolves a city name to coordinates. The first geocoding hit wins.
// The returned string is the upstream's canonical name for the hit.
func (c *Client) Forward(ctx context.Context, name string) (Point, string, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)
		values.Set("count", "1")
		u := fmt.Sprintf("%s/v1/search?%s", c.geoBase, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := upstream.Do(ctx, c.httpCfg, c.geoCB, buildRequest)
	if err != nil {
		return Point{}, "", fmt.Errorf("geocode %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Point{}, "", fmt.Errorf("geocode %q: decode: %w", name, err)
	}
	if len(payload.Results) == 0 {
		return Point{}, "", ErrNoMatch
	}

	hit := payload.Results[0]
	resolved := hit.Name
	if resolved == "" {
		resolved = name
	}
	return Point{Lat: hit.Latitude, Lon: hit.Longitude}, resolved, nil
}

// Reverse resolves coordinates to a settlement name. Nominatim requires a
// User-Agent header on every request.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
		values.Set("format", "json")
		values.Set("zoom", "10")
		u := fmt.Sprintf("%s/reverse?%s", c.nomBase, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}

	resp, err := upstream.Do(ctx, c.httpCfg, c.nomCB, buildRequest)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			City         string `json:"city"`
			Town         string `json:"town"`
			Village      string `json:"village"`
			Municipality string `json:"municipality"`
			County       string `json:"county"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("reverse geocode: decode: %w", err)
	}

	for _, name := range []string{
		payload.Address.City,
		payload.Address.Town,
		payload.Address.Village,
		payload.Address.Municipality,
		payload.Address.County,
	} {
		if name != "" {
			return name, nil
		}
	}
	if payload.DisplayName != "" {
		if i := strings.IndexByte(payload.DisplayName, ','); i > 0 {
			return strings.TrimSpace(payload.DisplayName[:i]), nil
		}
		return payload.DisplayName, nil
	}
	return "", ErrNoMatch
}
