package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pulsechat/relay/internal/metrics"
	"github.com/pulsechat/relay/internal/timeseries"
)

// WriterConfig holds tunable parameters for the message writer.
type WriterConfig struct {
	// Resolution is the bucket the storage timestamp is truncated to before
	// the append. Coarser resolutions reduce timestamp cardinality at the
	// cost of sub-resolution ordering; events landing in the same bucket are
	// disambiguated by the sequence tie-breaker.
	Resolution time.Duration

	// AppendTimeout bounds a single async append. An append that has not
	// completed by then is treated as failed and the event is dropped.
	AppendTimeout time.Duration
}

// DefaultWriterConfig returns production defaults: one-second buckets,
// five-second append deadline.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Resolution:    1 * time.Second,
		AppendTimeout: 5 * time.Second,
	}
}

// Writer appends chat events to a logical stream. The storage timestamp is
// assigned at write dispatch, not at transport receipt, truncated to the
// configured resolution, and clamped so that timestamps never go backwards
// in write order. Events stamped into the same bucket get increasing
// sequence numbers, so a collision produces distinct rows rather than an
// overwrite or rejection.
//
// Container access goes through the registry on every append, so the first
// write provisions the stream lazily.
type Writer struct {
	registry *timeseries.Registry
	stream   string
	schema   timeseries.Schema
	config   WriterConfig
	now      func() time.Time

	mu      sync.Mutex
	lastTs  time.Time
	lastSeq int

	seedOnce sync.Once
}

// NewWriter creates a Writer for the named stream.
func NewWriter(registry *timeseries.Registry, stream string, config WriterConfig) *Writer {
	return &Writer{
		registry: registry,
		stream:   stream,
		schema:   timeseries.ChatSchema(),
		config:   config,
		now:      time.Now,
	}
}

// seed initializes the stamp state from rows already stored in the current
// bucket, so a process restarted mid-bucket continues the sequence instead
// of re-issuing seq 0 and colliding with a pre-restart row. Best effort: on
// a failed query the writer starts cold and a collision surfaces as an
// append error.
func (w *Writer) seed(ctx context.Context, container timeseries.Container) {
	bucket := w.now().Truncate(w.config.Resolution)
	rows, err := container.Query(ctx, bucket.Add(-time.Nanosecond), bucket)
	if err != nil {
		log.Printf("[writer] seq seed query failed stream=%s: %v", w.stream, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	last := rows[len(rows)-1]
	w.mu.Lock()
	w.lastTs = last.Ts
	w.lastSeq = last.Seq
	w.mu.Unlock()
}

// stamp assigns the storage timestamp and sequence for one event. It is the
// single serialization point for the monotonicity invariant.
func (w *Writer) stamp() (time.Time, int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.now().Truncate(w.config.Resolution)
	if ts.Before(w.lastTs) {
		// Wall clock went backwards; hold the line.
		ts = w.lastTs
	}
	if ts.Equal(w.lastTs) {
		w.lastSeq++
	} else {
		w.lastTs = ts
		w.lastSeq = 0
	}
	return ts, w.lastSeq
}

// Append stamps the event and writes one row to the stream's container,
// provisioning it on first use. It returns the row as written.
func (w *Writer) Append(ctx context.Context, sender, text string) (timeseries.Row, error) {
	container, err := w.registry.Ensure(ctx, w.stream, w.schema)
	if err != nil {
		return timeseries.Row{}, err
	}

	w.seedOnce.Do(func() { w.seed(ctx, container) })

	ts, seq := w.stamp()
	row := timeseries.Row{Ts: ts, Seq: seq, Sender: sender, Text: text}

	start := time.Now()
	err = container.Append(ctx, row)
	metrics.AppendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return row, fmt.Errorf("relay: append to %q: %w", w.stream, err)
	}

	metrics.MessagesPersisted.Inc()
	return row, nil
}

// AppendAsync persists the event in the background under the best-effort
// durability contract: the caller's broadcast path is never blocked, and a
// failed or timed-out append is logged, counted, and dropped.
func (w *Writer) AppendAsync(sender, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.AppendTimeout)
		defer cancel()

		if _, err := w.Append(ctx, sender, text); err != nil {
			metrics.WritesDropped.Inc()
			log.Printf("[writer] dropped event stream=%s sender=%s: %v", w.stream, sender, err)
		}
	}()
}
