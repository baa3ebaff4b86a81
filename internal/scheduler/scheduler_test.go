package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meteolab/meteod/internal/store"
	"github.com/meteolab/meteod/internal/store/sqlite"
)

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

func newTestScheduler(t *testing.T, run RunFunc) *Scheduler {
	t.Helper()
	if run == nil {
		run = func(context.Context) {}
	}
	s := New(newTestStore(t), run)
	t.Cleanup(s.Stop)
	return s
}

// errStore fails every settings read; the embedded interface panics on
// anything else, which these tests never touch.
type errStore struct{ store.Store }

func (errStore) ReadSettings(context.Context) (store.Settings, error) {
	return store.Settings{}, errors.New("settings unavailable")
}

func TestStatusBeforeStart(t *testing.T) {
	s := newTestScheduler(t, nil)
	st := s.Status()
	if st.State != StateStopped || !st.Paused || st.NextFire != nil {
		t.Fatalf("expected stopped status before start, got %+v", st)
	}
}

func TestStartSchedulesFromSettings(t *testing.T) {
	s := newTestScheduler(t, nil)
	before := time.Now()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	st := s.Status()
	if st.State != StateRunning || st.Paused {
		t.Fatalf("expected running, got %+v", st)
	}
	if st.IntervalMinutes != store.DefaultIntervalMinutes {
		t.Fatalf("interval must come from settings, got %d", st.IntervalMinutes)
	}
	if st.NextFire == nil {
		t.Fatal("running status must carry a next fire time")
	}
	latest := before.Add(time.Duration(store.DefaultIntervalMinutes)*time.Minute + 2*time.Second)
	if st.NextFire.Before(before) || st.NextFire.After(latest) {
		t.Fatalf("next fire %v outside [now, now+interval]", st.NextFire)
	}
}

func TestStartTwiceFails(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second start must fail")
	}
}

func TestStartWithoutSettingsLeavesNoTask(t *testing.T) {
	s := New(errStore{}, func(context.Context) {})
	t.Cleanup(s.Stop)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("start must surface the settings read failure")
	}
	st := s.Status()
	if st.State != StateStopped {
		t.Fatalf("failed boot must report stopped, got %+v", st)
	}
}

func TestConfigureIdempotent(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := s.Status().NextFire
	if first == nil {
		t.Fatal("missing next fire")
	}

	// The interval already in effect must not perturb the schedule.
	if err := s.Configure(store.DefaultIntervalMinutes); err != nil {
		t.Fatalf("configure: %v", err)
	}
	second := s.Status().NextFire
	if second == nil || !second.Equal(*first) {
		t.Fatalf("same interval moved next fire: %v -> %v", first, second)
	}
}

func TestConfigureReschedulesFromNow(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	old := s.Status().NextFire

	before := time.Now()
	if err := s.Configure(10); err != nil {
		t.Fatalf("configure: %v", err)
	}
	st := s.Status()
	if st.IntervalMinutes != 10 {
		t.Fatalf("interval not applied, got %d", st.IntervalMinutes)
	}
	if st.NextFire == nil {
		t.Fatal("missing next fire after reschedule")
	}
	// New period counts from the reconfiguration moment, not the old anchor.
	latest := before.Add(10*time.Minute + 2*time.Second)
	if st.NextFire.After(latest) {
		t.Fatalf("next fire %v not rescheduled from now", st.NextFire)
	}
	if old != nil && !st.NextFire.Before(*old) {
		t.Fatalf("shrinking the interval must pull the next fire in: %v -> %v", old, st.NextFire)
	}
}

func TestConfigureRejectsInvalidInterval(t *testing.T) {
	s := newTestScheduler(t, nil)
	for _, minutes := range []int{0, -5} {
		if err := s.Configure(minutes); err == nil {
			t.Fatalf("interval %d must be rejected", minutes)
		}
	}
}

func TestConfigureBootstrapsWithoutStart(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Configure(5); err != nil {
		t.Fatalf("configure: %v", err)
	}
	st := s.Status()
	if st.State != StateRunning || st.IntervalMinutes != 5 {
		t.Fatalf("configure must bootstrap a running task, got %+v", st)
	}
}

func TestPauseResume(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st := s.Status()
	if st.State != StatePaused || !st.Paused || st.NextFire != nil {
		t.Fatalf("expected paused with no next fire, got %+v", st)
	}

	// Pausing again is a no-op.
	if err := s.Pause(); err != nil {
		t.Fatalf("second pause: %v", err)
	}

	before := time.Now()
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st = s.Status()
	if st.State != StateRunning || st.Paused || st.NextFire == nil {
		t.Fatalf("expected running after resume, got %+v", st)
	}
	// Missed ticks are never replayed; the next fire is a full period out.
	latest := before.Add(time.Duration(st.IntervalMinutes)*time.Minute + 2*time.Second)
	if st.NextFire.Before(before) || st.NextFire.After(latest) {
		t.Fatalf("resume must schedule a full period from now, got %v", st.NextFire)
	}

	// Resuming while running is a no-op.
	if err := s.Resume(); err != nil {
		t.Fatalf("second resume: %v", err)
	}
}

func TestConfigureWhilePausedKeepsPaused(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.Configure(7); err != nil {
		t.Fatalf("configure: %v", err)
	}
	st := s.Status()
	if st.State != StatePaused || st.IntervalMinutes != 7 {
		t.Fatalf("configure while paused must retain pause with new period, got %+v", st)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if st := s.Status(); st.IntervalMinutes != 7 {
		t.Fatalf("resume must use the updated period, got %+v", st)
	}
}

func TestToggle(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.Toggle("pause"); err != nil {
		t.Fatalf("toggle pause: %v", err)
	}
	if st := s.Status(); st.State != StatePaused {
		t.Fatalf("expected paused, got %+v", st)
	}
	if err := s.Toggle("resume"); err != nil {
		t.Fatalf("toggle resume: %v", err)
	}
	if st := s.Status(); st.State != StateRunning {
		t.Fatalf("expected running, got %+v", st)
	}
	if err := s.Toggle("restart"); err == nil {
		t.Fatal("unknown action must be rejected")
	}
}

func TestToggleBootstrapsWithoutTask(t *testing.T) {
	// A toggle with no task at all heals itself into a running one,
	// whatever the requested action was.
	s := newTestScheduler(t, nil)
	if err := s.Toggle("pause"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	st := s.Status()
	if st.State != StateRunning {
		t.Fatalf("toggle must bootstrap a running task, got %+v", st)
	}
	if st.IntervalMinutes != store.DefaultIntervalMinutes {
		t.Fatalf("bootstrap must read the interval from settings, got %d", st.IntervalMinutes)
	}
}

func TestTriggerNowSkipsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	s := newTestScheduler(t, func(context.Context) {
		close(entered)
		<-block
	})

	if !s.TriggerNow() {
		t.Fatal("first trigger must start a pass")
	}
	<-entered
	if s.TriggerNow() {
		t.Fatal("trigger must be skipped while a pass is in flight")
	}
	close(block)
}

func TestScheduledFiresDoNotOverlap(t *testing.T) {
	var running, maxRunning, fires int32
	s := newTestScheduler(t, func(context.Context) {
		cur := atomic.AddInt32(&running, 1)
		if cur > atomic.LoadInt32(&maxRunning) {
			atomic.StoreInt32(&maxRunning, cur)
		}
		atomic.AddInt32(&fires, 1)
		// Outlast one period so the next tick arrives mid-run.
		time.Sleep(1500 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	})

	// Shrink the period unit so interval 1 fires every second.
	s.mu.Lock()
	s.periodUnit = time.Second
	s.mu.Unlock()
	if err := s.Configure(1); err != nil {
		t.Fatalf("configure: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&fires) < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&fires); got < 2 {
		t.Fatalf("expected at least 2 fires, got %d", got)
	}
	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Fatalf("collection passes overlapped: %d concurrent", got)
	}
}

func TestStopIsTerminal(t *testing.T) {
	s := New(newTestStore(t), func(context.Context) {})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	// Stop again is a no-op.
	s.Stop()

	if err := s.Configure(5); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if st := s.Status(); st.State != StateStopped {
		t.Fatalf("expected stopped, got %+v", st)
	}
	if s.TriggerNow() {
		t.Fatal("stopped scheduler must not trigger passes")
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	s := New(newTestStore(t), func(context.Context) {
		<-release
		close(finished)
	})

	if !s.TriggerNow() {
		t.Fatal("trigger failed")
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("stop returned before the in-flight pass finished")
	}
}
