package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/onnwee/domu/internal/tracing"
)

// Schema creates the key/value table used by Postgres.
const Schema = `CREATE TABLE IF NOT EXISTS registry_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	getQuery = `SELECT value FROM registry_kv WHERE key = $1`
	setQuery = `INSERT INTO registry_kv (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// Postgres stores values in the registry_kv table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool for databaseURL and verifies it.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgres wraps db. Call EnsureSchema before first use on a fresh database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the registry_kv table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("kvstore: ensure schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "postgresql", tracing.StoreGet, key)
	defer func() { end(err) }()

	err = p.db.QueryRowContext(ctx, getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: postgres get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (p *Postgres) Set(ctx context.Context, key, value string) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "postgresql", tracing.StoreSet, key)
	defer func() { end(err) }()

	if _, err = p.db.ExecContext(ctx, setQuery, key, value); err != nil {
		return fmt.Errorf("kvstore: postgres set %s: %w", key, err)
	}
	return nil
}
