package factory

import (
	"errors"
	"net/url"
	"strings"

	"github.com/meteolab/meteod/internal/history"
	"github.com/meteolab/meteod/internal/history/clickhouse"
	"github.com/meteolab/meteod/internal/history/opensearch"
)

// NewSinkFromDSN creates a measurement export sink based on DSN format.
// Supported formats:
//   - "clickhouse://host:port?database=db&table=table"
//   - "opensearch://host:port/index" (also "elasticsearch://")
func NewSinkFromDSN(dsn string) (history.Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}

	lower := strings.ToLower(dsn)

	if strings.HasPrefix(lower, "clickhouse://") {
		return parseClickHouseDSN(dsn)
	}
	if strings.HasPrefix(lower, "opensearch://") || strings.HasPrefix(lower, "elasticsearch://") {
		return parseOpenSearchDSN(dsn)
	}

	return nil, errors.New("unsupported export DSN: " + dsn)
}

func parseClickHouseDSN(dsn string) (history.Sink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}

	host := u.Host
	if host == "" {
		host = "localhost:9000" // default ClickHouse native port
	}

	q := u.Query()
	table := q.Get("table")
	if table == "" {
		table = "meteod_measurements"
	}

	return clickhouse.New(host, q.Get("database"), table)
}

func parseOpenSearchDSN(dsn string) (history.Sink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}

	// OpenSearch speaks plain HTTP on its REST port.
	baseURL := "http://" + u.Host

	index := strings.Trim(u.Path, "/")
	if index == "" {
		index = "meteod-measurements"
	}

	return opensearch.New(baseURL, index), nil
}
