package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIToken: "secret", Timeout: 2 * time.Second})
}

func writeJSON(t *testing.T, w http.ResponseWriter, code int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestStatusDecodesSnapshot(t *testing.T) {
	next := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/status" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, SchedulerStatus{Status: "Running", NextRun: &next, IntervalMinutes: 30})
	})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != "Running" || st.NextRun == nil || !st.NextRun.Equal(next) {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestBearerTokenSent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		writeJSON(t, w, http.StatusOK, CollectResponse{OK: true, Started: true})
	})

	resp, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !resp.Started {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpdateSettingsSendsPartialBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/settings" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		// Only the set field travels; nil fields are omitted.
		if len(body) != 1 || body["freshness_minutes"] != 15 {
			t.Fatalf("unexpected body: %v", body)
		}
		writeJSON(t, w, http.StatusOK, Settings{IntervalMinutes: 30, RefreshSeconds: 60, FreshnessMinutes: 15})
	})

	fresh := 15
	s, err := c.UpdateSettings(context.Background(), SettingsUpdate{FreshnessMinutes: &fresh})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if s.FreshnessMinutes != 15 {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestHistoryQueryEncoding(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("location") != "Lisbon" || q.Get("hours") != "48" || q.Get("metric") != "" {
			t.Fatalf("unexpected query: %v", q)
		}
		writeJSON(t, w, http.StatusOK, []Measurement{{Location: "Lisbon", Temperature: 21}})
	})

	rows, err := c.History(context.Background(), HistoryQuery{Location: "Lisbon", Hours: 48})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].Temperature != 21 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestExtremesRequiresMetric(t *testing.T) {
	c := New(DefaultConfig())
	if _, err := c.Extremes(context.Background(), HistoryQuery{Location: "Lisbon"}); err == nil {
		t.Fatal("extremes without a metric must fail")
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, ErrorResponse{Error: "location has no coordinates"})
	})

	_, err := c.LiveOne(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "API error: location has no coordinates" {
		t.Fatalf("unexpected error: %q", got)
	}
}

func TestIsReachable(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]bool{"ok": true})
	})
	if !c.IsReachable(context.Background()) {
		t.Fatal("healthy daemon must be reachable")
	}

	down := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	if down.IsReachable(context.Background()) {
		t.Fatal("unreachable daemon must report false")
	}
}
