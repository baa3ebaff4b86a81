package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/store"
	"github.com/robfig/cron/v3"
)

// RunFunc executes one collection pass.
type RunFunc func(ctx context.Context)

// States reported by Status.
const (
	StateRunning = "Running"
	StatePaused  = "Paused"
	StateStopped = "Stopped"
	StateUnknown = "Unknown"
)

// ErrStopped is returned by operations arriving after shutdown began.
var ErrStopped = errors.New("scheduler stopped")

const settingsReadTimeout = 5 * time.Second

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State           string     `json:"status"`
	NextFire        *time.Time `json:"next_run"`
	Paused          bool       `json:"paused"`
	IntervalMinutes int        `json:"interval_minutes"`
}

// Scheduler owns the single recurring collection task. The task's period,
// paused flag and next fire time change only through the operations below.
type Scheduler struct {
	store store.Store
	run   RunFunc

	mu sync.RWMutex

	// Scheduling state, guarded by mu.
	cron        *cron.Cron
	entryID     cron.EntryID
	isScheduled bool
	paused      bool
	minutes     int
	stopped     bool

	// Overlap guard shared by timed fires and manual triggers.
	running atomic.Bool
	wg      sync.WaitGroup

	// Lifecycle context handed to collection passes.
	ctx    context.Context
	cancel context.CancelFunc

	// periodUnit scales the interval; tests shrink it to drive real fires fast.
	periodUnit time.Duration
}

func New(st store.Store, run RunFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      st,
		run:        run,
		cron:       cron.New(),
		ctx:        ctx,
		cancel:     cancel,
		periodUnit: time.Minute,
	}
}

// Start reads the collection interval from the settings row and schedules
// the task. On failure the daemon keeps serving without a task; a later
// Configure or Toggle bootstraps one.
func (s *Scheduler) Start(ctx context.Context) error {
	settings, err := s.store.ReadSettings(ctx)
	if err != nil {
		slog.Error("Scheduler start left no task", "error", err)
		return fmt.Errorf("read settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.isScheduled {
		return fmt.Errorf("scheduler already started")
	}
	return s.scheduleLocked(settings.IntervalMinutes)
}

// Configure applies a new period. The period already in effect leaves the
// next fire untouched; a different one schedules anew with next = now +
// period. With no task present it bootstraps one, healing a failed boot.
// The paused flag changes only through explicit pause and resume.
func (s *Scheduler) Configure(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("interval must be at least 1 minute, got %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.paused {
		s.minutes = minutes
		slog.Info("Collection interval updated while paused", "interval_minutes", minutes)
		return nil
	}
	if s.isScheduled && minutes == s.minutes {
		return nil
	}
	return s.scheduleLocked(minutes)
}

// Pause removes the cron entry and keeps the period. An in-flight pass
// finishes; nothing fires afterwards.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.paused {
		return nil
	}
	s.pauseLocked()
	return nil
}

// Resume schedules the task anew: the next fire lands a full period from
// now, missed ticks are never replayed.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.isScheduled && !s.paused {
		return nil
	}
	return s.resumeLocked()
}

// Toggle dispatches a pause or resume request. With no task at all it
// bootstraps a Running one instead of pausing or resuming nothing.
func (s *Scheduler) Toggle(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	if !s.isScheduled && !s.paused {
		return s.resumeLocked()
	}

	switch action {
	case "pause":
		if !s.paused {
			s.pauseLocked()
		}
		return nil
	case "resume":
		if s.isScheduled && !s.paused {
			return nil
		}
		return s.resumeLocked()
	default:
		return fmt.Errorf("unknown scheduler action %q", action)
	}
}

// Status reports a snapshot. Internal inconsistencies degrade to Unknown
// instead of failing the caller.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Paused: s.paused, IntervalMinutes: s.minutes}
	switch {
	case s.stopped, !s.isScheduled && !s.paused:
		st.State = StateStopped
		st.Paused = true
	case s.paused:
		st.State = StatePaused
	default:
		next := s.nextFireLocked()
		if next == nil {
			// The entry vanished while state says scheduled.
			st.State = StateUnknown
			st.Paused = true
			return st
		}
		st.State = StateRunning
		st.NextFire = next
	}
	return st
}

// TriggerNow runs one collection pass outside the schedule. The overlap
// guard applies exactly as for timed fires: with a pass already in flight
// the trigger reports false and nothing runs.
func (s *Scheduler) TriggerNow() bool {
	if !s.running.CompareAndSwap(false, true) {
		slog.Info("Collection pass already running, manual trigger skipped")
		metrics.IncCollectRun("skipped")
		return false
	}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		s.running.Store(false)
		return false
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.running.Store(false)
		defer s.wg.Done()
		s.run(ctx)
	}()
	return true
}

// Stop halts scheduling and waits for an in-flight pass to finish. The
// controller is terminal afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.isScheduled {
		s.cron.Remove(s.entryID)
		s.isScheduled = false
	}
	stopCtx := s.cron.Stop()
	s.publishLocked()
	s.mu.Unlock()

	<-stopCtx.Done()
	s.wg.Wait()
	s.cancel()
	slog.Info("Scheduler stopped")
}

// scheduleLocked replaces the cron entry with one firing every minutes,
// first at now + period. Callers hold mu.
func (s *Scheduler) scheduleLocked(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("interval must be at least 1 minute, got %d", minutes)
	}
	s.cron.Start()
	if s.isScheduled {
		s.cron.Remove(s.entryID)
	}
	s.entryID = s.cron.Schedule(cron.Every(time.Duration(minutes)*s.periodUnit), cron.FuncJob(s.fire))
	s.isScheduled = true
	s.paused = false
	s.minutes = minutes
	s.publishLocked()
	slog.Info("Collection task scheduled", "interval_minutes", minutes)
	return nil
}

// pauseLocked removes the entry but keeps the period for resume.
// Callers hold mu.
func (s *Scheduler) pauseLocked() {
	if s.isScheduled {
		s.cron.Remove(s.entryID)
		s.isScheduled = false
	}
	s.paused = true
	s.publishLocked()
	slog.Info("Collection task paused")
}

// resumeLocked schedules anew from the retained period, falling back to
// the settings row when none was ever applied. Callers hold mu.
func (s *Scheduler) resumeLocked() error {
	minutes := s.minutes
	if minutes < 1 {
		ctx, cancel := context.WithTimeout(context.Background(), settingsReadTimeout)
		defer cancel()
		settings, err := s.store.ReadSettings(ctx)
		if err != nil {
			return fmt.Errorf("read settings: %w", err)
		}
		minutes = settings.IntervalMinutes
	}
	return s.scheduleLocked(minutes)
}

// fire is invoked by cron. Overlapping fires are skipped, never queued.
func (s *Scheduler) fire() {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("Previous collection pass still running, skipping fire")
		metrics.IncCollectRun("skipped")
		return
	}
	defer s.running.Store(false)

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	s.run(ctx)

	s.mu.RLock()
	s.publishLocked()
	s.mu.RUnlock()
}

// nextFireLocked reads the entry's next activation. Callers hold mu.
func (s *Scheduler) nextFireLocked() *time.Time {
	if !s.isScheduled {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			if entry.Next.IsZero() {
				return nil
			}
			next := entry.Next
			return &next
		}
	}
	return nil
}

// publishLocked refreshes the scheduler gauges. Callers hold mu.
func (s *Scheduler) publishLocked() {
	if next := s.nextFireLocked(); next != nil {
		metrics.SetSchedulerNextRun(float64(next.Unix()))
	} else {
		metrics.SetSchedulerNextRun(0)
	}
	state := s.stateLocked()
	for _, st := range []string{StateRunning, StatePaused, StateStopped} {
		metrics.SetSchedulerState(st, st == state)
	}
}

func (s *Scheduler) stateLocked() string {
	switch {
	case s.stopped, !s.isScheduled && !s.paused:
		return StateStopped
	case s.paused:
		return StatePaused
	default:
		return StateRunning
	}
}
