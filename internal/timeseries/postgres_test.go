package timeseries

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// newTestPostgres connects to the database named by TEST_POSTGRES_DSN and
// drops any leftover test stream tables. Tests using this helper are skipped
// when no database is reachable.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	cleanup := func() {
		store.db.Exec(`DROP TABLE IF EXISTS stream_pgtest`)
		store.db.Exec(`DELETE FROM containers WHERE name = 'pgtest'`)
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		store.Close()
	})
	return store
}

func TestPostgresProvisionAndRoundTrip(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()

	c, err := store.Provision(ctx, "pgtest", ChatSchema())
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	// Idempotent re-provision returns a usable handle.
	if _, err := store.Provision(ctx, "pgtest", ChatSchema()); err != nil {
		t.Fatalf("re-provision: %v", err)
	}

	// Mismatched schema is rejected.
	bad := Schema{Columns: []Column{{Name: "ts", Type: TypeTimestamp}}}
	if _, err := store.Provision(ctx, "pgtest", bad); err != ErrSchemaMismatch {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		row := Row{Ts: base, Seq: i, Sender: "alice", Text: fmt.Sprintf("msg-%d", i)}
		if err := c.Append(ctx, row); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := c.Query(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	for i, r := range got {
		if r.Seq != i {
			t.Errorf("row %d: expected seq %d, got %d", i, i, r.Seq)
		}
	}
}

func TestPostgresTableName(t *testing.T) {
	cases := map[string]string{
		"Chat":       "stream_chat",
		"chat-room1": "stream_chat_room1",
		"a.b c":      "stream_a_b_c",
	}
	for in, want := range cases {
		if got := tableName(in); got != want {
			t.Errorf("tableName(%q): expected %q, got %q", in, want, got)
		}
	}
}
