// Package hub maintains the set of live chat sessions and fans inbound
// events out to all of them. Broadcast never depends on the persistence
// path: a slow or failing store cannot delay delivery.
package hub

import (
	"log"
	"sync"
)

// sendBuffer is the per-session outbound queue depth. A session that falls
// further behind than this has events dropped rather than applying
// backpressure to the broadcast.
const sendBuffer = 256

// Sink is the outbound half of a session: anything that can deliver one
// serialized message to the connected client. *ws.Connection satisfies it.
type Sink interface {
	Send(data []byte) error
}

// Session is one live real-time connection. It is owned exclusively by the
// hub and carries no persistent state. Each session drains its own buffered
// queue in a dedicated writer goroutine, so a stalled peer only delays its
// own delivery.
type Session struct {
	ID   string
	Name string // display name, set by the user_join event

	sink  Sink
	queue chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSession creates a session delivering through the given sink.
func NewSession(id string, sink Sink) *Session {
	return &Session{ID: id, sink: sink, queue: make(chan []byte, sendBuffer)}
}

// writeLoop drains the queue into the sink until the session closes. A
// failed delivery is logged and skipped; dead connections are evicted by the
// transport layer, not here.
func (s *Session) writeLoop() {
	for data := range s.queue {
		if err := s.sink.Send(data); err != nil {
			log.Printf("[hub] deliver to session=%s failed: %v", s.ID, err)
		}
	}
}

// enqueue hands one event to the session's writer without blocking. When the
// queue is full the event is dropped for this session only.
func (s *Session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- data:
	default:
		log.Printf("[hub] send queue full, dropping event session=%s", s.ID)
	}
}

// close stops the writer goroutine. Safe to call more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Hub is the broadcast fan-out. Join, Leave, and Broadcast are mutually
// consistent: a session is either fully present for a broadcast or absent,
// never half-removed. Delivery runs in each session's own writer goroutine,
// so sessions never serialize each other.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// Join adds a session to the hub and starts its writer. Joining an ID that
// is already present replaces (and closes) the previous session.
func (h *Hub) Join(s *Session) {
	h.mu.Lock()
	old := h.sessions[s.ID]
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	go s.writeLoop()
	log.Printf("[hub] session joined id=%s (total=%d)", s.ID, n)
}

// Leave removes a session and stops its writer. Returns false if the session
// was already gone, which lets racing cleanup paths detect double removal.
func (h *Hub) Leave(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		s.close()
		log.Printf("[hub] session left id=%s (total=%d)", id, n)
	}
	return ok
}

// SetName records the display name announced by a session.
func (h *Hub) SetName(id, name string) {
	h.mu.Lock()
	if s, ok := h.sessions[id]; ok {
		s.Name = name
	}
	h.mu.Unlock()
}

// Name returns the display name a session announced, or empty if the
// session is unknown or has not joined by name yet.
func (h *Hub) Name(id string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[id]; ok {
		return s.Name
	}
	return ""
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	n := len(h.sessions)
	h.mu.RUnlock()
	return n
}

// Broadcast enqueues data for every session joined at the moment of the
// call. Enqueue never blocks, so one stalled session cannot delay delivery
// to any other; per-session order follows enqueue order.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
}
