package timeseries

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore persists containers in PostgreSQL. Each logical stream gets
// its own table with primary key (ts, seq); a `containers` catalog table
// records every stream's schema so that schema conflicts are detected instead
// of silently diverging.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL, verifies the connection, and applies
// the catalog migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("timeseries: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("timeseries: ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing database handle without running
// migrations. Used by tests that manage the schema themselves.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// migrate applies the embedded catalog migrations.
func (s *PostgresStore) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("timeseries: load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("timeseries: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("timeseries: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("timeseries: migrate up: %w", err)
	}
	return nil
}

// Provision registers the stream in the catalog and creates its table. The
// catalog insert uses ON CONFLICT DO NOTHING, so racing processes converge:
// whoever wins records the schema, everyone else is checked against it.
func (s *PostgresStore) Provision(ctx context.Context, name string, schema Schema) (Container, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("timeseries: marshal schema: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO containers (name, schema) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("timeseries: register container: %w", err)
	}

	var storedJSON []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT schema FROM containers WHERE name = $1`, name).Scan(&storedJSON)
	if err != nil {
		return nil, fmt.Errorf("timeseries: read container schema: %w", err)
	}

	var stored Schema
	if err := json.Unmarshal(storedJSON, &stored); err != nil {
		return nil, fmt.Errorf("timeseries: decode container schema: %w", err)
	}
	if !stored.Equal(schema) {
		return nil, ErrSchemaMismatch
	}

	table := tableName(name)
	createStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts     TIMESTAMPTZ NOT NULL,
		seq    INTEGER     NOT NULL,
		sender TEXT        NOT NULL,
		body   TEXT        NOT NULL,
		PRIMARY KEY (ts, seq)
	)`, pq.QuoteIdentifier(table))
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		return nil, fmt.Errorf("timeseries: create table %s: %w", table, err)
	}

	return &postgresContainer{db: s.db, name: name, table: table}, nil
}

// tableName derives a safe SQL identifier from a logical stream name:
// lowercased, non-alphanumerics collapsed to underscores, prefixed so that
// stream tables are recognizable next to the catalog.
func tableName(name string) string {
	var b strings.Builder
	b.WriteString("stream_")
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

type postgresContainer struct {
	db    *sql.DB
	name  string
	table string
}

func (c *postgresContainer) Name() string { return c.name }

func (c *postgresContainer) Append(ctx context.Context, row Row) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (ts, seq, sender, body) VALUES ($1, $2, $3, $4)`,
		pq.QuoteIdentifier(c.table))
	if _, err := c.db.ExecContext(ctx, stmt, row.Ts, row.Seq, row.Sender, row.Text); err != nil {
		return fmt.Errorf("timeseries: append to %s: %w", c.name, err)
	}
	return nil
}

func (c *postgresContainer) Query(ctx context.Context, from, to time.Time) ([]Row, error) {
	stmt := fmt.Sprintf(
		`SELECT ts, seq, sender, body FROM %s WHERE ts > $1 AND ts <= $2 ORDER BY ts, seq`,
		pq.QuoteIdentifier(c.table))

	rows, err := c.db.QueryContext(ctx, stmt, from, to)
	if err != nil {
		return nil, fmt.Errorf("timeseries: query %s: %w", c.name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Ts, &r.Seq, &r.Sender, &r.Text); err != nil {
			return nil, fmt.Errorf("timeseries: scan %s: %w", c.name, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeseries: iterate %s: %w", c.name, err)
	}
	return out, nil
}
