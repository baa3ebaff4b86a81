// Package meteod exposes the daemon's building blocks for embedding:
// the store, the collection scheduler, the freshness resolver and the
// HTTP control surface.
package meteod

import (
	"net/http"
	"time"

	"github.com/meteolab/meteod/internal/collector"
	cfg "github.com/meteolab/meteod/internal/config"
	"github.com/meteolab/meteod/internal/geocode"
	"github.com/meteolab/meteod/internal/history"
	hfactory "github.com/meteolab/meteod/internal/history/factory"
	"github.com/meteolab/meteod/internal/meteo"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/resolver"
	"github.com/meteolab/meteod/internal/scheduler"
	iapi "github.com/meteolab/meteod/internal/server"
	"github.com/meteolab/meteod/internal/store"
	sfactory "github.com/meteolab/meteod/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Location = store.Location

type Measurement = store.Measurement

type Settings = store.Settings

type Store = store.Store

type Config = cfg.Config

type Observation = meteo.Observation

type Gateway = meteo.Gateway

type Scheduler = scheduler.Scheduler

type RunFunc = scheduler.RunFunc

type SchedulerStatus = scheduler.Status

type Resolver = resolver.Resolver

type ResolveResult = resolver.Result

type Collector = collector.Runner

type CollectorOption = collector.Option

type HistorySink = history.Sink

type HistoryEvent = history.Event

type ServerConfig = iapi.Config

// LoadConfig reads the TOML file at path plus METEOD_* environment
// overrides. An empty path uses defaults and the environment only.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewStore opens a store by DSN: a bare path or sqlite:// prefix selects
// sqlite, postgres:// selects PostgreSQL.
func NewStore(dsn string) (Store, error) { return sfactory.NewFromDSN(dsn) }

// NewGateway builds the open-meteo fetch gateway.
func NewGateway(c cfg.UpstreamConfig, timeout time.Duration) Gateway {
	return meteo.New(meteo.Config{
		ForecastBase:   c.ForecastBase,
		AirQualityBase: c.AirQualityBase,
		Timeout:        timeout,
	})
}

// NewGeocoder builds the forward/reverse geocoding client.
func NewGeocoder(c cfg.UpstreamConfig) *geocode.Client {
	return geocode.New(geocode.Config{
		GeocodingBase: c.GeocodingBase,
		NominatimBase: c.NominatimBase,
	})
}

// NewResolver builds the freshness resolver over a store and gateway.
func NewResolver(st Store, gw Gateway) *Resolver { return resolver.New(st, gw) }

// NewCollector builds the collection runner; its Run method is one pass.
func NewCollector(st Store, gw Gateway, opts ...CollectorOption) *Collector {
	return collector.New(st, gw, opts...)
}

// CollectorWithSink fans persisted measurements out to an export sink.
func CollectorWithSink(sink HistorySink) CollectorOption { return collector.WithSink(sink) }

// CollectorWithRetention purges measurements older than days each pass.
func CollectorWithRetention(days int) CollectorOption { return collector.WithRetention(days) }

// NewScheduler builds the collection scheduler; run is the pass body.
func NewScheduler(st Store, run RunFunc) *Scheduler { return scheduler.New(st, run) }

// NewSinkFromDSN opens an export sink by DSN (clickhouse:// or
// opensearch://).
func NewSinkFromDSN(dsn string) (HistorySink, error) { return hfactory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the control API server on addr.
func NewHTTPServer(addr string, sc ServerConfig) *http.Server { return iapi.NewServer(addr, sc) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
