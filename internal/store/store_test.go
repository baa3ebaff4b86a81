package store

import (
	"testing"
	"time"
)

func TestSettingsValidate(t *testing.T) {
	ok := Settings{IntervalMinutes: 1, RefreshSeconds: 1, FreshnessMinutes: 0}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	bad := []Settings{
		{IntervalMinutes: 0, RefreshSeconds: 60, FreshnessMinutes: 30},
		{IntervalMinutes: -5, RefreshSeconds: 60, FreshnessMinutes: 30},
		{IntervalMinutes: 30, RefreshSeconds: 0, FreshnessMinutes: 30},
		{IntervalMinutes: 30, RefreshSeconds: 60, FreshnessMinutes: -1},
	}
	for _, s := range bad {
		if err := s.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", s)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	d := DefaultSettings()
	if d.IntervalMinutes != 30 || d.RefreshSeconds != 60 || d.FreshnessMinutes != 30 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.Interval() != 30*time.Minute {
		t.Fatalf("interval duration: %v", d.Interval())
	}
	if d.FreshnessWindow() != 30*time.Minute {
		t.Fatalf("freshness duration: %v", d.FreshnessWindow())
	}
}

func TestMetricColumnWhitelist(t *testing.T) {
	for _, m := range Metrics() {
		col, ok := MetricColumn(m)
		if !ok || col == "" {
			t.Fatalf("metric %q should be whitelisted", m)
		}
	}
	for _, m := range []string{"", "password", "created_at; DROP TABLE measurements", "Temperature"} {
		if _, ok := MetricColumn(m); ok {
			t.Fatalf("metric %q must not be whitelisted", m)
		}
	}
}

func TestLocationHasCoordinates(t *testing.T) {
	lat, lon := 48.85, 2.35
	cases := []struct {
		loc  Location
		want bool
	}{
		{Location{Name: "a"}, false},
		{Location{Name: "b", Lat: &lat}, false},
		{Location{Name: "c", Lon: &lon}, false},
		{Location{Name: "d", Lat: &lat, Lon: &lon}, true},
	}
	for _, c := range cases {
		if got := c.loc.HasCoordinates(); got != c.want {
			t.Fatalf("%s: got %v want %v", c.loc.Name, got, c.want)
		}
	}
}
