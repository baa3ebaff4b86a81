package meteo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meteolab/meteod/internal/upstream"
	"github.com/sony/gobreaker"
)

const defaultTimeout = 10 * time.Second

// Config controls the upstream endpoints and the per-call HTTP budget.
type Config struct {
	ForecastBase   string
	AirQualityBase string
	Timeout        time.Duration
}

// Client fetches current weather from the open-meteo forecast and
// air quality APIs.
type Client struct {
	forecastBase string
	airBase      string
	httpCfg      upstream.Config
	forecastCB   *gobreaker.CircuitBreaker
	airCB        *gobreaker.CircuitBreaker
}

var _ Gateway = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.ForecastBase == "" {
		cfg.ForecastBase = "https://api.open-meteo.com"
	}
	if cfg.AirQualityBase == "" {
		cfg.AirQualityBase = "https://air-quality-api.open-meteo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		forecastBase: strings.TrimRight(cfg.ForecastBase, "/"),
		airBase:      strings.TrimRight(cfg.AirQualityBase, "/"),
		httpCfg: upstream.Config{
			Client:  &http.Client{Timeout: cfg.Timeout},
			Backoff: upstream.DefaultBackoff(),
		},
		forecastCB: upstream.NewBreaker("openmeteo-forecast"),
		airCB:      upstream.NewBreaker("openmeteo-air-quality"),
	}
}

// Fetch reads the current weather and the US AQI for the coordinates.
// An air quality failure degrades to a zero AQI instead of failing the
// whole observation.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	obs, err := c.fetchForecast(ctx, lat, lon)
	if err != nil {
		return Observation{}, err
	}
	aqi, err := c.fetchAQI(ctx, lat, lon)
	if err != nil {
		slog.Warn("Air quality fetch failed, keeping zero AQI", "error", err)
	} else {
		obs.AQI = aqi
	}
	return obs, nil
}

type forecastPayload struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly struct {
		Time                     []string  `json:"time"`
		RelativeHumidity         []float64 `json:"relativehumidity_2m"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		Precipitation            []float64 `json:"precipitation"`
	} `json:"hourly"`
}

func (c *Client) fetchForecast(ctx context.Context, lat, lon float64) (Observation, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(lat))
		values.Set("longitude", formatCoord(lon))
		values.Set("current_weather", "true")
		values.Set("hourly", "relativehumidity_2m,precipitation_probability,precipitation")
		values.Set("timezone", "auto")
		u := fmt.Sprintf("%s/v1/forecast?%s", c.forecastBase, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := upstream.Do(ctx, c.httpCfg, c.forecastCB, buildRequest)
	if err != nil {
		return Observation{}, fmt.Errorf("forecast: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload forecastPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Observation{}, fmt.Errorf("forecast: decode: %w", err)
	}

	idx := hourlyIndex(payload.Hourly.Time, payload.CurrentWeather.Time)
	return Observation{
		Temperature:     payload.CurrentWeather.Temperature,
		Humidity:        int(at(payload.Hourly.RelativeHumidity, idx)),
		RainProbability: int(at(payload.Hourly.PrecipitationProbability, idx)),
		RainMM:          at(payload.Hourly.Precipitation, idx),
	}, nil
}

func (c *Client) fetchAQI(ctx context.Context, lat, lon float64) (int, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(lat))
		values.Set("longitude", formatCoord(lon))
		values.Set("current", "us_aqi")
		u := fmt.Sprintf("%s/v1/air-quality?%s", c.airBase, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := upstream.Do(ctx, c.httpCfg, c.airCB, buildRequest)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Current struct {
			USAQI float64 `json:"us_aqi"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	return int(payload.Current.USAQI), nil
}

// hourlyIndex picks the hourly slot the current-weather timestamp falls in.
// Slots and timestamp share the response timezone, so ISO-8601 string order
// is time order.
func hourlyIndex(slots []string, current string) int {
	idx := 0
	for i, ts := range slots {
		if ts > current {
			break
		}
		idx = i
	}
	return idx
}

func at(series []float64, idx int) float64 {
	if len(series) == 0 {
		return 0
	}
	if idx >= len(series) {
		idx = len(series) - 1
	}
	return series[idx]
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
