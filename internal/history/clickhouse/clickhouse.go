package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/meteolab/meteod/internal/history"
)

// conn is the slice of driver.Conn the sink needs; tests substitute a recorder.
type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
	Close() error
}

// Sink inserts measurement events into ClickHouse over the native protocol,
// one row per event.
type Sink struct {
	conn  conn
	table string
}

func New(addr, database, table string) (*Sink, error) {
	if database == "" {
		database = "default"
	}
	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Sink{conn: c, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (run_id, location, source, temperature, humidity, aqi, rain_probability, rain_mm, measured_at, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.RunID,
		e.Location,
		e.Source,
		e.Measurement.Temperature,
		e.Measurement.Humidity,
		e.Measurement.AQI,
		e.Measurement.RainProbability,
		e.Measurement.RainMM,
		e.Measurement.CreatedAt,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event into clickhouse: %w", err)
	}
	return nil
}
