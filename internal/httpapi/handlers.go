// Package httpapi exposes the request/response boundary of the relay:
// message submission and history retrieval. Submission shares the ingestion
// pipeline with the WebSocket path and is acknowledged regardless of the
// persistence outcome; history failures surface as an explicit error status,
// never as a silently empty result.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/pulsechat/relay/internal/ratelimit"
	"github.com/pulsechat/relay/internal/relay"
)

// DefaultHistoryWindow is the trailing window served by the history
// endpoint.
const DefaultHistoryWindow = 6 * time.Hour

// historyEntry is one chat event in the history response.
type historyEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// Limiter throttles submissions per remote address. *ratelimit.Limiter
// satisfies it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Handler serves the relay's HTTP API.
type Handler struct {
	relay   *relay.Relay
	reader  *relay.Reader
	limiter Limiter // optional
	window  time.Duration
}

// New creates a Handler. window <= 0 selects DefaultHistoryWindow.
func New(r *relay.Relay, reader *relay.Reader, window time.Duration) *Handler {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Handler{relay: r, reader: reader, window: window}
}

// SetLimiter attaches a per-address rate limit to the submit endpoint.
func (h *Handler) SetLimiter(l Limiter) {
	h.limiter = l
}

// SubmitMessage handles POST /api/messages. It feeds the same ingestion
// path as an inbound WebSocket chat_message and acknowledges with 202:
// durability is best-effort, so the ack reflects broadcast, not storage.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if h.limiter != nil {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		allowed, err := h.limiter.Allow(r.Context(), host, ratelimit.RuleSubmit)
		if err != nil {
			log.Printf("[httpapi] rate limit check failed addr=%s: %v", host, err)
		}
		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many submissions"})
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}

	sender := r.Form.Get("sender")
	text := r.Form.Get("text")

	if err := h.relay.HandleChatMessage(sender, text); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// FetchHistory handles GET /api/history, returning the trailing window of
// chat events in ascending timestamp order. An empty window is 200 with an
// empty list; a store failure is 500 with an error body.
func (h *Handler) FetchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.reader.Recent(ctx, h.window)
	if err != nil {
		log.Printf("[httpapi] history query failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}

	entries := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, historyEntry{
			Sender: row.Sender,
			Text:   row.Text,
			Ts:     row.Ts.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
