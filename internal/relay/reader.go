package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsechat/relay/internal/metrics"
	"github.com/pulsechat/relay/internal/timeseries"
)

// Reader answers bounded trailing-window history queries against a logical
// stream. Results are finite, materialized, and ordered by (ts, seq)
// ascending as stored. An empty window is a valid result, not an error.
type Reader struct {
	registry *timeseries.Registry
	stream   string
	schema   timeseries.Schema
	now      func() time.Time
}

// NewReader creates a Reader for the named stream.
func NewReader(registry *timeseries.Registry, stream string) *Reader {
	return &Reader{
		registry: registry,
		stream:   stream,
		schema:   timeseries.ChatSchema(),
		now:      time.Now,
	}
}

// Recent returns all events from the trailing window ending now. Store
// or provisioning failures surface to the caller, who decides how to
// degrade.
func (r *Reader) Recent(ctx context.Context, window time.Duration) ([]timeseries.Row, error) {
	container, err := r.registry.Ensure(ctx, r.stream, r.schema)
	if err != nil {
		metrics.HistoryQueries.WithLabelValues("error").Inc()
		return nil, err
	}

	to := r.now()
	rows, err := container.Query(ctx, to.Add(-window), to)
	if err != nil {
		metrics.HistoryQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("relay: history query %q: %w", r.stream, err)
	}

	metrics.HistoryQueries.WithLabelValues("ok").Inc()
	return rows, nil
}
