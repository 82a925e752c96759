package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestRecent creates a Recent ring on a local Redis instance with a clean
// key. Tests using this helper are skipped when Redis is unreachable.
func newTestRecent(t *testing.T, max int) *Recent {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	r := NewRecent(client, "cachetest", max)
	client.Del(ctx, r.key)
	t.Cleanup(func() {
		client.Del(ctx, r.key)
		client.Close()
	})
	return r
}

func TestAddAndGetChronological(t *testing.T) {
	r := newTestRecent(t, 10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := Message{Sender: "a", Text: fmt.Sprintf("msg-%d", i), Ts: int64(i)}
		if err := r.Add(ctx, msg); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	msgs, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		expected := fmt.Sprintf("msg-%d", i+1)
		if m.Text != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, m.Text)
		}
	}
}

func TestTrimToMax(t *testing.T) {
	r := newTestRecent(t, 5)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		if err := r.Add(ctx, Message{Sender: "a", Text: fmt.Sprintf("msg-%d", i), Ts: int64(i)}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	msgs, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 retained messages, got %d", len(msgs))
	}
	// Oldest retained entry is msg-4.
	if msgs[0].Text != "msg-4" || msgs[4].Text != "msg-8" {
		t.Errorf("unexpected retained range: first=%q last=%q", msgs[0].Text, msgs[4].Text)
	}
}

func TestGetEmpty(t *testing.T) {
	r := newTestRecent(t, 5)

	msgs, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("get on empty ring must not error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(msgs))
	}
}
