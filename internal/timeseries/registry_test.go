package timeseries

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingStore wraps a Store and counts Provision calls, optionally delaying
// them so concurrent Ensure callers actually overlap.
type countingStore struct {
	inner Store
	delay time.Duration
	calls int32
}

func (s *countingStore) Provision(ctx context.Context, name string, schema Schema) (Container, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.inner.Provision(ctx, name, schema)
}

// failingStore always fails to provision.
type failingStore struct{}

func (failingStore) Provision(ctx context.Context, name string, schema Schema) (Container, error) {
	return nil, errors.New("store unavailable")
}

func TestEnsureConcurrentFirstUse(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(), delay: 20 * time.Millisecond}
	reg := NewRegistry(store)
	ctx := context.Background()

	const callers = 16
	results := make([]Container, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Ensure(ctx, "chat", ChatSchema())
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&store.calls); n != 1 {
		t.Fatalf("expected exactly 1 provision call, got %d", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d resolved to a different container handle", i)
		}
	}
}

func TestEnsureDistinctStreams(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore()}
	reg := NewRegistry(store)
	ctx := context.Background()

	c1, err := reg.Ensure(ctx, "chat", ChatSchema())
	if err != nil {
		t.Fatalf("ensure chat: %v", err)
	}
	c2, err := reg.Ensure(ctx, "audit", ChatSchema())
	if err != nil {
		t.Fatalf("ensure audit: %v", err)
	}
	if c1 == c2 {
		t.Fatal("distinct streams must not share a container")
	}
	if n := atomic.LoadInt32(&store.calls); n != 2 {
		t.Fatalf("expected 2 provision calls, got %d", n)
	}
}

func TestEnsureCachesTerminalError(t *testing.T) {
	reg := NewRegistry(failingStore{})
	ctx := context.Background()

	_, err1 := reg.Ensure(ctx, "chat", ChatSchema())
	if err1 == nil {
		t.Fatal("expected provisioning error")
	}
	_, err2 := reg.Ensure(ctx, "chat", ChatSchema())
	if err2 == nil {
		t.Fatal("expected cached provisioning error")
	}
	if err1.Error() != err2.Error() {
		t.Fatalf("expected same terminal error, got %q then %q", err1, err2)
	}
}

func TestEnsureWaiterHonorsContext(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(), delay: 200 * time.Millisecond}
	reg := NewRegistry(store)

	// Winner provisions slowly in the background.
	go reg.Ensure(context.Background(), "chat", ChatSchema())
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reg.Ensure(ctx, "chat", ChatSchema())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded for cancelled waiter, got %v", err)
	}

	// The in-flight provision still settles and later callers succeed.
	c, err := reg.Ensure(context.Background(), "chat", ChatSchema())
	if err != nil || c == nil {
		t.Fatalf("expected provision to settle, got c=%v err=%v", c, err)
	}
}
