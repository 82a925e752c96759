// Package timeseries defines the append-only, time-indexed storage layer for
// chat events. A Store provisions named containers; a Container accepts
// appends keyed by (timestamp, sequence) and answers bounded time-range
// queries. Two implementations exist: an in-memory store used by tests and
// single-node deployments without a database, and a PostgreSQL store for
// durable persistence.
package timeseries

import (
	"context"
	"errors"
	"time"
)

// Column types supported by container schemas.
const (
	TypeTimestamp = "timestamp"
	TypeInteger   = "integer"
	TypeString    = "string"
)

// ErrSchemaMismatch is returned by Provision when a container already exists
// under the requested name with a different schema. This is a configuration
// error and is never retried.
var ErrSchemaMismatch = errors.New("timeseries: schema mismatch for existing container")

// Column is a single (name, type) pair in a container schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the ordered column list for a container.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Equal reports whether two schemas have identical columns in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range s.Columns {
		if c != other.Columns[i] {
			return false
		}
	}
	return true
}

// Row is one chat event as stored. Seq disambiguates rows that share a
// normalized timestamp, so two events written in the same resolution bucket
// remain two distinct rows.
type Row struct {
	Ts     time.Time
	Seq    int
	Sender string
	Text   string
}

// Container is a handle to one provisioned logical stream. Append is safe
// under concurrent appenders; Query returns rows with from < ts <= to in
// ascending (ts, seq) order.
type Container interface {
	Name() string
	Append(ctx context.Context, row Row) error
	Query(ctx context.Context, from, to time.Time) ([]Row, error)
}

// Store provisions containers. Provision is idempotent: requesting a name
// that already exists with a matching schema returns the existing container,
// and a schema conflict returns ErrSchemaMismatch.
type Store interface {
	Provision(ctx context.Context, name string, schema Schema) (Container, error)
}

// ChatSchema returns the canonical schema for a chat message stream:
// a time-typed row key plus the sequence tie-breaker, sender, and text.
func ChatSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "ts", Type: TypeTimestamp},
		{Name: "seq", Type: TypeInteger},
		{Name: "sender", Type: TypeString},
		{Name: "body", Type: TypeString},
	}}
}
