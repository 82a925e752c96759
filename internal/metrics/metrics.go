// Package metrics provides Prometheus instrumentation for the relay. It
// exposes gauges for live sessions, counters for broadcast and persistence
// outcomes, and histograms for store latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive tracks the current number of live WebSocket sessions.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Current number of live WebSocket sessions",
	})

	// MessagesBroadcast counts events fanned out to sessions, labeled by
	// kind: "chat" or "join".
	MessagesBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_broadcast_total",
		Help: "Total number of events broadcast to sessions",
	}, []string{"kind"}) // kind = "chat", "join"

	// MessagesPersisted counts chat events durably appended to the store.
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_persisted_total",
		Help: "Total number of chat events appended to the store",
	})

	// WritesDropped counts chat events whose store append failed and was
	// dropped under the best-effort durability contract.
	WritesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_writes_dropped_total",
		Help: "Total number of chat events dropped after a failed append",
	})

	// AppendLatency records store append latency in seconds.
	AppendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_append_latency_seconds",
		Help:    "Store append latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// HistoryQueries counts history range queries, labeled by outcome.
	HistoryQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_history_queries_total",
		Help: "Total number of history queries",
	}, []string{"status"}) // status = "ok", "error"
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		MessagesBroadcast,
		MessagesPersisted,
		WritesDropped,
		AppendLatency,
		HistoryQueries,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
