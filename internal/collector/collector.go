package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meteolab/meteod/internal/history"
	"github.com/meteolab/meteod/internal/meteo"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/store"
)

const defaultTimeout = 10 * time.Second

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds the fetch-and-persist work for one location. A slow
// location delays the pass only by its own budget.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSink fans persisted measurements out to an export sink.
func WithSink(sink history.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithRetention purges measurements older than days at the end of each
// pass; days <= 0 keeps everything.
func WithRetention(days int) Option {
	return func(r *Runner) { r.retentionDays = days }
}

// Runner executes one collection pass: fetch and persist a measurement for
// every location with resolved coordinates. The scheduler invokes Run as
// its task body; it never runs concurrently with itself.
type Runner struct {
	store         store.Store
	gateway       meteo.Gateway
	sink          history.Sink
	timeout       time.Duration
	retentionDays int

	// now is swapped in tests to control the retention cutoff.
	now func() time.Time
}

func New(st store.Store, gw meteo.Gateway, opts ...Option) *Runner {
	r := &Runner{
		store:   st,
		gateway: gw,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass over all locations in stable name order. A failing
// location is logged and skipped, never aborting the rest; the pass itself
// completes even when every location fails.
func (r *Runner) Run(ctx context.Context) {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)
	start := time.Now()

	locs, err := r.store.ListLocations(ctx)
	if err != nil {
		log.Error("Collection pass could not list locations", "error", err)
		metrics.IncCollectRun("failed")
		return
	}

	result := "completed"
	var collected, failed, skipped int
	for _, loc := range locs {
		if ctx.Err() != nil {
			log.Warn("Collection pass cancelled", "error", ctx.Err())
			result = "cancelled"
			break
		}
		if !loc.HasCoordinates() {
			skipped++
			continue
		}
		if err := r.collectOne(ctx, runID, loc); err != nil {
			failed++
			log.Error("Location collection failed", "location", loc.Name, "error", err)
			metrics.IncLocationFailure(loc.Name)
			continue
		}
		collected++
	}

	if r.retentionDays > 0 && result == "completed" {
		cutoff := r.now().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
		purged, err := r.store.PurgeMeasurementsBefore(ctx, cutoff)
		if err != nil {
			log.Error("Retention purge failed", "cutoff", cutoff, "error", err)
		} else if purged > 0 {
			log.Info("Purged old measurements", "rows", purged, "cutoff", cutoff)
		}
	}

	elapsed := time.Since(start)
	metrics.IncCollectRun(result)
	metrics.ObserveCollectDuration(result, elapsed.Seconds())
	log.Info("Collection pass finished",
		"result", result,
		"locations", len(locs),
		"collected", collected,
		"failed", failed,
		"skipped", skipped,
		"elapsed", elapsed.Round(time.Millisecond))
}

func (r *Runner) collectOne(parent context.Context, runID string, loc store.Location) error {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	obs, err := r.gateway.Fetch(ctx, *loc.Lat, *loc.Lon)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	saved, err := r.store.AppendMeasurement(ctx, store.Measurement{
		Location:        loc.Name,
		Temperature:     obs.Temperature,
		Humidity:        obs.Humidity,
		AQI:             obs.AQI,
		RainProbability: obs.RainProbability,
		RainMM:          obs.RainMM,
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	metrics.IncMeasurementStored(loc.Name)
	history.Export(r.sink, history.Event{
		RunID:       runID,
		Location:    loc.Name,
		Source:      "collector",
		Measurement: saved,
		OccurredAt:  r.now(),
	})
	return nil
}
