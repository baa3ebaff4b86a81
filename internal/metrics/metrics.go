package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	collectRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meteod",
			Subsystem: "collect",
			Name:      "runs_total",
			Help:      "Number of collection passes by result (completed, failed, skipped, cancelled).",
		}, []string{"result"},
	)
	collectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meteod",
			Subsystem: "collect",
			Name:      "run_duration_seconds",
			Help:      "Duration of collection passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"},
	)
	locationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meteod",
			Subsystem: "collect",
			Name:      "location_failures_total",
			Help:      "Per-location fetch or persist failures inside collection passes.",
		}, []string{"location"},
	)
	measurementsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meteod",
			Name:      "measurements_stored_total",
			Help:      "Measurements persisted, labelled by location.",
		}, []string{"location"},
	)
	resolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meteod",
			Name:      "resolve_total",
			Help:      "Freshness resolutions by outcome (cached, fetched, stale).",
		}, []string{"source"},
	)
	schedulerNextRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meteod",
			Subsystem: "scheduler",
			Name:      "next_run_seconds",
			Help:      "Unix time of the next scheduled collection pass; 0 when none is planned.",
		},
	)
	schedulerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "meteod",
			Subsystem: "scheduler",
			Name:      "state",
			Help:      "Scheduler state flags (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	exportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meteod",
			Name:      "export_failures_total",
			Help:      "Measurement export sink failures.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{collectRuns, collectDuration, locationFailures, measurementsStored, resolves, schedulerNextRun, schedulerState, exportFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCollectRun(result string) {
	if regOK.Load() {
		collectRuns.WithLabelValues(result).Inc()
	}
}

func ObserveCollectDuration(result string, seconds float64) {
	if regOK.Load() {
		collectDuration.WithLabelValues(result).Observe(seconds)
	}
}

func IncLocationFailure(location string) {
	if regOK.Load() {
		locationFailures.WithLabelValues(location).Inc()
	}
}

func IncMeasurementStored(location string) {
	if regOK.Load() {
		measurementsStored.WithLabelValues(location).Inc()
	}
}

func IncResolve(source string) {
	if regOK.Load() {
		resolves.WithLabelValues(source).Inc()
	}
}

// SetSchedulerNextRun records the unix timestamp of the next planned pass.
// Pass 0 to clear it (paused or stopped).
func SetSchedulerNextRun(unixSeconds float64) {
	if regOK.Load() {
		schedulerNextRun.Set(unixSeconds)
	}
}

func SetSchedulerState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		schedulerState.WithLabelValues(state).Set(value)
	}
}

func IncExportFailure() {
	if regOK.Load() {
		exportFailures.Inc()
	}
}
