package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs the test suite and serves as a
// non-durable fallback when no database is configured.
type MemoryStore struct {
	mu         sync.Mutex
	containers map[string]*memoryContainer
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{containers: make(map[string]*memoryContainer)}
}

// Provision returns the container registered under name, creating it on first
// use. An existing container with a different schema yields ErrSchemaMismatch.
func (s *MemoryStore) Provision(ctx context.Context, name string, schema Schema) (Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[name]; ok {
		if !c.schema.Equal(schema) {
			return nil, ErrSchemaMismatch
		}
		return c, nil
	}

	c := &memoryContainer{name: name, schema: schema}
	s.containers[name] = c
	return c, nil
}

// memoryContainer holds rows in arrival order and sorts on query, since
// concurrent appenders may interleave out of timestamp order.
type memoryContainer struct {
	name   string
	schema Schema

	mu   sync.RWMutex
	rows []Row
}

func (c *memoryContainer) Name() string { return c.name }

func (c *memoryContainer) Append(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.rows = append(c.rows, row)
	c.mu.Unlock()
	return nil
}

func (c *memoryContainer) Query(ctx context.Context, from, to time.Time) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	out := make([]Row, 0, len(c.rows))
	for _, r := range c.rows {
		if r.Ts.After(from) && !r.Ts.After(to) {
			out = append(out, r)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ts.Equal(out[j].Ts) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Ts.Before(out[j].Ts)
	})
	return out, nil
}
