package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meteolab/meteod/internal/meteo"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/store"
)

// Source labels for Result.
const (
	SourceCached  = "cached"
	SourceFetched = "fetched"
)

// Result is a resolved measurement plus how it was served.
type Result struct {
	Measurement store.Measurement
	Source      string
	Stale       bool
}

// LocationResult pairs one location of the live feed with its outcome.
type LocationResult struct {
	Location string
	Result   Result
	Err      error
}

// Resolver serves the freshest measurement per location: the cached row
// while it is inside the freshness window, a fresh fetch once it ages out.
// It holds no state between calls; concurrent resolves may both fetch and
// the last write wins.
type Resolver struct {
	store   store.Store
	gateway meteo.Gateway

	// now is swapped in tests to move the clock without sleeping.
	now func() time.Time
}

func New(st store.Store, gw meteo.Gateway) *Resolver {
	return &Resolver{store: st, gateway: gw, now: time.Now}
}

// Resolve returns the measurement for one location, fetching when the
// cached row has aged past the freshness window. The window is read from
// the settings row on every call so updates take effect immediately.
func (r *Resolver) Resolve(ctx context.Context, name string) (Result, error) {
	loc, err := r.store.GetLocation(ctx, name)
	if err != nil {
		return Result{}, err
	}
	settings, err := r.store.ReadSettings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read settings: %w", err)
	}
	return r.resolve(ctx, loc, settings.FreshnessWindow())
}

// ResolveAll resolves every stored location with per-location isolation:
// one failing location never hides the others. Locations without
// coordinates do not appear in the feed.
func (r *Resolver) ResolveAll(ctx context.Context) ([]LocationResult, error) {
	settings, err := r.store.ReadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	locs, err := r.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	window := settings.FreshnessWindow()

	out := make([]LocationResult, 0, len(locs))
	for _, loc := range locs {
		if !loc.HasCoordinates() {
			continue
		}
		res, err := r.resolve(ctx, loc, window)
		if err != nil {
			slog.Error("Live resolve failed", "location", loc.Name, "error", err)
		}
		out = append(out, LocationResult{Location: loc.Name, Result: res, Err: err})
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, loc store.Location, window time.Duration) (Result, error) {
	if !loc.HasCoordinates() {
		return Result{}, store.ErrNoCoordinates
	}

	cached, err := r.store.LatestMeasurement(ctx, loc.Name)
	haveCached := err == nil
	if err != nil && !errors.Is(err, store.ErrNoMeasurement) {
		return Result{}, err
	}

	// Boundary equality counts as fresh, as does a row from the future.
	if haveCached && r.now().Sub(cached.CreatedAt) <= window {
		metrics.IncResolve(SourceCached)
		return Result{Measurement: cached, Source: SourceCached}, nil
	}

	obs, err := r.gateway.Fetch(ctx, *loc.Lat, *loc.Lon)
	if err != nil {
		if haveCached {
			slog.Warn("Fetch failed, serving stale measurement",
				"location", loc.Name,
				"age", r.now().Sub(cached.CreatedAt).Round(time.Second),
				"error", err)
			metrics.IncResolve("stale")
			return Result{Measurement: cached, Source: SourceCached, Stale: true}, nil
		}
		return Result{}, fmt.Errorf("fetch %s: %w", loc.Name, err)
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
		return Result{}, fmt.Errorf("persist %s: %w", loc.Name, err)
	}
	metrics.IncResolve(SourceFetched)
	return Result{Measurement: saved, Source: SourceFetched}, nil
}
