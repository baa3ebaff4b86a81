package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/store"
)

// Event is one persisted measurement exported to an external
// analytics/search system.
type Event struct {
	RunID       string            `json:"run_id,omitempty"`
	Location    string            `json:"location"`
	Source      string            `json:"source"`
	Measurement store.Measurement `json:"measurement"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Sink is a destination for measurement events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

const sendTimeout = 5 * time.Second

// inflight tracks background sends so shutdown can drain them before
// the sink is closed underneath them.
var inflight sync.WaitGroup

// Export sends e to sink in the background. Failures are logged and
// dropped so export never blocks or fails the collection path.
func Export(sink Sink, e Event) {
	if sink == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := sink.Send(ctx, e); err != nil {
			slog.Warn("Measurement export failed", "location", e.Location, "error", err)
			metrics.IncExportFailure()
		}
	}()
}

// Shutdown waits for in-flight exports to finish, then closes the sink.
// A nil sink is a no-op.
func Shutdown(sink Sink) error {
	inflight.Wait()
	if sink == nil {
		return nil
	}
	return sink.Close()
}
