package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meteolab/meteod/internal/history"
	"github.com/meteolab/meteod/internal/meteo"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/store"
	"github.com/meteolab/meteod/internal/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeGateway struct {
	obs   meteo.Observation
	calls int

	// failLat makes Fetch fail only for this latitude.
	failLat float64
	err     error
}

var _ meteo.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) Fetch(_ context.Context, lat, _ float64) (meteo.Observation, error) {
	f.calls++
	if f.err != nil && (f.failLat == 0 || f.failLat == lat) {
		return meteo.Observation{}, f.err
	}
	return f.obs, nil
}

type recordSink struct {
	mu     sync.Mutex
	events []history.Event
	done   chan struct{}
}

func (r *recordSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordSink) Close() error { return nil }

func ptr(v float64) *float64 { return &v }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(context.Background(), store.DefaultSettings()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return st
}

func addLocation(t *testing.T, st store.Store, name string, lat, lon *float64) {
	t.Helper()
	if _, err := st.UpsertLocation(context.Background(), store.Location{Name: name, Lat: lat, Lon: lon}); err != nil {
		t.Fatalf("upsert %s: %v", name, err)
	}
}

func TestRunCollectsAllLocations(t *testing.T) {
	st := newTestStore(t)
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))
	addLocation(t, st, "Porto", ptr(41.15), ptr(-8.61))

	gw := &fakeGateway{obs: meteo.Observation{Temperature: 20.5, Humidity: 60, AQI: 35, RainProbability: 40, RainMM: 1.2}}
	New(st, gw).Run(context.Background())

	if gw.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", gw.calls)
	}
	for _, name := range []string{"Lisbon", "Porto"} {
		m, err := st.LatestMeasurement(context.Background(), name)
		if err != nil {
			t.Fatalf("latest %s: %v", name, err)
		}
		if m.Temperature != 20.5 || m.Humidity != 60 {
			t.Fatalf("unexpected measurement for %s: %+v", name, m)
		}
	}
}

func TestRunSkipsLocationsWithoutCoordinates(t *testing.T) {
	st := newTestStore(t)
	addLocation(t, st, "Atlantis", nil, nil)
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))

	gw := &fakeGateway{obs: meteo.Observation{Temperature: 18}}
	New(st, gw).Run(context.Background())

	if gw.calls != 1 {
		t.Fatalf("incomplete locations must not be fetched, got %d calls", gw.calls)
	}
	if _, err := st.LatestMeasurement(context.Background(), "Atlantis"); !errors.Is(err, store.ErrNoMeasurement) {
		t.Fatalf("expected no measurement for Atlantis, got %v", err)
	}
}

func TestRunIsolatesLocationFailure(t *testing.T) {
	st := newTestStore(t)
	// Name order decides processing order; the failing one sorts first.
	addLocation(t, st, "Aberdeen", ptr(99), ptr(1))
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))

	gw := &fakeGateway{
		obs:     meteo.Observation{Temperature: 17.5},
		err:     errors.New("upstream down"),
		failLat: 99,
	}
	New(st, gw).Run(context.Background())

	if gw.calls != 2 {
		t.Fatalf("failure must not abort the loop, got %d calls", gw.calls)
	}
	m, err := st.LatestMeasurement(context.Background(), "Lisbon")
	if err != nil {
		t.Fatalf("subsequent location must still be persisted: %v", err)
	}
	if m.Temperature != 17.5 {
		t.Fatalf("unexpected measurement: %+v", m)
	}
	if _, err := st.LatestMeasurement(context.Background(), "Aberdeen"); !errors.Is(err, store.ErrNoMeasurement) {
		t.Fatalf("failed location must not persist a row, got %v", err)
	}
}

func TestRunCompletesWhenAllFail(t *testing.T) {
	st := newTestStore(t)
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))
	addLocation(t, st, "Porto", ptr(41.15), ptr(-8.61))

	gw := &fakeGateway{err: errors.New("upstream down")}
	// Must return normally, a pass with zero successes is not an error.
	New(st, gw).Run(context.Background())

	if gw.calls != 2 {
		t.Fatalf("expected both locations attempted, got %d", gw.calls)
	}
}

func TestRunExportsToSink(t *testing.T) {
	st := newTestStore(t)
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))
	addLocation(t, st, "Porto", ptr(41.15), ptr(-8.61))

	sink := &recordSink{done: make(chan struct{}, 8)}
	gw := &fakeGateway{obs: meteo.Observation{Temperature: 21}}
	New(st, gw, WithSink(sink)).Run(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-sink.done:
		case <-time.After(2 * time.Second):
			t.Fatal("sink did not receive all events")
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	runID := sink.events[0].RunID
	if runID == "" {
		t.Fatal("events must carry a run id")
	}
	for _, e := range sink.events {
		if e.RunID != runID {
			t.Fatalf("one pass must share a run id: %q vs %q", e.RunID, runID)
		}
		if e.Source != "collector" || e.Measurement.ID == 0 {
			t.Fatalf("unexpected event: %+v", e)
		}
	}
}

func TestRunRetentionPurge(t *testing.T) {
	st := newTestStore(t)
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if _, err := st.AppendMeasurement(context.Background(), store.Measurement{
		Location: "Lisbon", Temperature: 5, CreatedAt: old,
	}); err != nil {
		t.Fatalf("seed old measurement: %v", err)
	}

	gw := &fakeGateway{obs: meteo.Observation{Temperature: 21}}
	New(st, gw, WithRetention(7)).Run(context.Background())

	rows, err := st.MeasurementsBetween(context.Background(), "Lisbon", old.Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("measurements between: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the old row purged and the new one kept, got %d rows", len(rows))
	}
	if rows[0].Temperature != 21 {
		t.Fatalf("kept the wrong row: %+v", rows[0])
	}
}

// cancellingGateway cancels the pass context on its first fetch.
type cancellingGateway struct {
	cancel context.CancelFunc
	calls  int
}

func (g *cancellingGateway) Fetch(context.Context, float64, float64) (meteo.Observation, error) {
	g.calls++
	g.cancel()
	return meteo.Observation{Temperature: 12}, nil
}

func TestRunCancelledMidPass(t *testing.T) {
	st := newTestStore(t)
	// Name order decides processing order; cancellation lands before the second.
	addLocation(t, st, "Aberdeen", ptr(57.15), ptr(-2.09))
	addLocation(t, st, "Lisbon", ptr(38.72), ptr(-9.14))

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &cancellingGateway{cancel: cancel}
	New(st, gw).Run(ctx)

	if gw.calls != 1 {
		t.Fatalf("remaining locations must not be fetched after cancellation, got %d calls", gw.calls)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var cancelled float64
	for _, mf := range mfs {
		if mf.GetName() != "meteod_collect_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == "cancelled" {
					cancelled = m.GetCounter().GetValue()
				}
			}
		}
	}
	if cancelled < 1 {
		t.Fatalf("cancelled pass must be counted as cancelled, got %v", cancelled)
	}
}

func TestRunEmptyLocationList(t *testing.T) {
	st := newTestStore(t)
	gw := &fakeGateway{}
	New(st, gw).Run(context.Background())
	if gw.calls != 0 {
		t.Fatalf("no locations means no fetches, got %d", gw.calls)
	}
}
