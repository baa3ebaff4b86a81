package main

import (
	"context"
	"errors"
	"testing"

	"github.com/meteolab/meteod/internal/scheduler"
	"github.com/meteolab/meteod/internal/store"
)

// brokenSettingsStore fails every settings read; the embedded interface
// panics on anything else, which this test never touches.
type brokenSettingsStore struct{ store.Store }

func (brokenSettingsStore) ReadSettings(context.Context) (store.Settings, error) {
	return store.Settings{}, errors.New("settings unavailable")
}

func TestStartSchedulerSurvivesSettingsReadFailure(t *testing.T) {
	sched := scheduler.New(brokenSettingsStore{}, func(context.Context) {})
	t.Cleanup(sched.Stop)

	// Must log and return rather than abort the daemon boot.
	startScheduler(context.Background(), sched)

	if got := sched.Status().State; got != scheduler.StateStopped {
		t.Fatalf("failed boot must leave no task, got %s", got)
	}

	// A later settings update heals the degraded boot.
	if err := sched.Configure(5); err != nil {
		t.Fatalf("configure after failed boot: %v", err)
	}
	if got := sched.Status().State; got != scheduler.StateRunning {
		t.Fatalf("configure must bootstrap a task, got %s", got)
	}
}
