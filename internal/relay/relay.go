package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pulsechat/relay/internal/cache"
	"github.com/pulsechat/relay/internal/hub"
	"github.com/pulsechat/relay/internal/metrics"
	"github.com/pulsechat/relay/internal/protocol"
)

// EventTap publishes ingested chat events to an external bus for
// out-of-process consumers. *messaging.NATSClient satisfies it.
type EventTap interface {
	PublishEvent(stream string, data []byte) error
}

// Relay is the ingestion pipeline. For each inbound chat event it
// broadcasts to every live session first, then kicks off the independent
// side effects: the async store append, the recent-message cache, and the
// event tap. None of the side effects gate the broadcast or each other.
type Relay struct {
	hub    *hub.Hub
	writer *Writer       // nil when persistence runs out of process
	recent *cache.Recent // optional
	tap    EventTap      // optional
	stream string
}

// New creates a Relay over the given hub and writer. A nil writer disables
// in-process persistence (the event tap then carries the events to an
// external archiver).
func New(h *hub.Hub, w *Writer) *Relay {
	return &Relay{hub: h, writer: w}
}

// SetRecent attaches the recent-message cache.
func (r *Relay) SetRecent(c *cache.Recent) {
	r.recent = c
}

// SetTap attaches an event tap publishing to the named stream subject.
func (r *Relay) SetTap(t EventTap, stream string) {
	r.tap = t
	r.stream = stream
}

// HandleUserJoin broadcasts a join announcement to all sessions. Join
// announcements are never persisted.
func (r *Relay) HandleUserJoin(name string) error {
	if err := ValidateSender(name); err != nil {
		return fmt.Errorf("relay: user_join: %w", err)
	}

	data, err := protocol.NewServerMessage(protocol.TypeUserJoin, protocol.UserJoinMsg{Name: name})
	if err != nil {
		return err
	}
	r.hub.Broadcast(data)
	metrics.MessagesBroadcast.WithLabelValues("join").Inc()
	return nil
}

// HandleChatMessage relays one chat event. The returned error covers
// validation and encoding only; once the broadcast has happened the call
// succeeds regardless of any side effect's outcome.
func (r *Relay) HandleChatMessage(sender, text string) error {
	if err := ValidateSender(sender); err != nil {
		return fmt.Errorf("relay: chat_message: %w", err)
	}
	if err := ValidateMessage(text); err != nil {
		return fmt.Errorf("relay: chat_message: %w", err)
	}

	ts := time.Now()
	data, err := protocol.NewServerMessage(protocol.TypeChatMessage, protocol.ChatMsg{
		Sender: sender,
		Text:   text,
		Ts:     ts.Unix(),
	})
	if err != nil {
		return err
	}

	// Deliver to live viewers before anything else touches an external
	// system.
	r.hub.Broadcast(data)
	metrics.MessagesBroadcast.WithLabelValues("chat").Inc()

	if r.writer != nil {
		r.writer.AppendAsync(sender, text)
	}

	if r.recent != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := r.recent.Add(ctx, cache.Message{Sender: sender, Text: text, Ts: ts.Unix()}); err != nil {
				log.Printf("[relay] recent cache add failed: %v", err)
			}
		}()
	}

	if r.tap != nil {
		payload, err := json.Marshal(TapEvent{Sender: sender, Text: text, Ts: ts.Unix()})
		if err == nil {
			if err := r.tap.PublishEvent(r.stream, payload); err != nil {
				log.Printf("[relay] event tap publish failed: %v", err)
			}
		}
	}

	return nil
}
