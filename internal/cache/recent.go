// Package cache provides a Redis-backed ring of the most recent chat
// messages, replayed to clients on connect. It is a best-effort convenience
// layer: callers treat failures as non-fatal and fall back to the store.
//
//	Key:   recent:<stream>
//	Value: JSON list entries, newest first, trimmed to a fixed length
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxMessages is the number of messages retained per stream.
const DefaultMaxMessages = 10

// Message is one cached chat message.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// Recent is the recent-message ring for one stream.
type Recent struct {
	client *redis.Client
	key    string
	max    int
}

// NewRecent creates the ring for the named stream. max <= 0 selects
// DefaultMaxMessages.
func NewRecent(client *redis.Client, stream string, max int) *Recent {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Recent{
		client: client,
		key:    "recent:" + stream,
		max:    max,
	}
}

// Add pushes a message onto the ring and trims it to the retained length.
func (r *Recent) Add(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cache: marshal message: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: push recent: %w", err)
	}
	return nil
}

// Get returns the retained messages in chronological order, oldest first.
// A missing key yields an empty slice.
func (r *Recent) Get(ctx context.Context) ([]Message, error) {
	vals, err := r.client.LRange(ctx, r.key, 0, int64(r.max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: read recent: %w", err)
	}

	// The list stores newest first; walk it backwards.
	out := make([]Message, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var m Message
		if err := json.Unmarshal([]byte(vals[i]), &m); err != nil {
			return nil, fmt.Errorf("cache: decode recent entry: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
