package timeseries

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Registry is the single entry point for container access. It guarantees
// that concurrent first-use of a logical stream issues exactly one Provision
// call to the underlying store: later and racing callers wait for the
// in-flight attempt and observe the same handle, or the same terminal error.
//
// Provisioning outcomes are cached for the process lifetime. A failed
// provision (store unreachable, schema conflict) is treated as fatal for that
// stream and is not retried.
type Registry struct {
	store Store

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	done      chan struct{} // closed once provisioning settles
	container Container
	err       error
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:   store,
		entries: make(map[string]*registryEntry),
	}
}

// Ensure returns the container for name, provisioning it on first use. All
// concurrent callers for the same name converge on a single result. The
// caller that loses the race waits for the winner; ctx cancellation releases
// the waiter without disturbing the in-flight provision.
func (r *Registry) Ensure(ctx context.Context, name string, schema Schema) (Container, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &registryEntry{done: make(chan struct{})}
		r.entries[name] = e
		r.mu.Unlock()

		e.container, e.err = r.store.Provision(ctx, name, schema)
		if e.err != nil {
			e.err = fmt.Errorf("timeseries: provision %q: %w", name, e.err)
			log.Printf("[registry] provision failed stream=%s: %v", name, e.err)
		}
		close(e.done)
		return e.container, e.err
	}
	r.mu.Unlock()

	select {
	case <-e.done:
		return e.container, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
