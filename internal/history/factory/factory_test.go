package factory

import (
	"strings"
	"testing"
)

func TestNewSinkFromDSN(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := NewSinkFromDSN("mysql://host/db"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported DSN error, got %v", err)
	}

	// OpenSearch sinks connect lazily, so construction succeeds offline.
	s, err := NewSinkFromDSN("opensearch://localhost:9200/meteod")
	if err != nil {
		t.Fatalf("opensearch dsn: %v", err)
	}
	_ = s.Close()

	if _, err := NewSinkFromDSN("elasticsearch://localhost:9200/meteod"); err != nil {
		t.Fatalf("elasticsearch dsn: %v", err)
	}
}

func TestParseOpenSearchDefaultIndex(t *testing.T) {
	s, err := parseOpenSearchDSN("opensearch://localhost:9200")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s == nil {
		t.Fatal("expected a sink")
	}
	_ = s.Close()
}

func TestClickHouseDSNRequiresServer(t *testing.T) {
	t.Skip("requires a running ClickHouse instance")
}
