package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the read surface shared by the validator and the query service.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Handle is a live pool bound to exactly one Config. Callers borrow it for a
// single operation; it may be closed by a concurrent swap afterwards.
type Handle interface {
	Querier
	Ping(ctx context.Context) error
	Config() Config
	Close()
}

// Opener builds a Handle for a Config.
type Opener func(ctx context.Context, cfg Config) (Handle, error)

// DB wraps a pgxpool.Pool bound to a Config.
type DB struct {
	pool      *pgxpool.Pool
	cfg       Config
	closeOnce sync.Once
}

// Open creates a connection pool for cfg. Connections are dialed lazily, so an
// unreachable server surfaces on the first query rather than here.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.WithDefaults()

	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &DB{pool: pool, cfg: cfg}, nil
}

// OpenHandle is the production Opener.
func OpenHandle(ctx context.Context, cfg Config) (Handle, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes the pool. It blocks until every acquired connection has been
// released and is safe to call more than once.
func (db *DB) Close() {
	db.closeOnce.Do(db.pool.Close)
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Query runs sql on a pooled connection.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow runs sql on a pooled connection and returns at most one row.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Config returns the configuration the pool was built from.
func (db *DB) Config() Config {
	return db.cfg
}

// Stat returns pool statistics.
func (db *DB) Stat() *pgxpool.Stat {
	return db.pool.Stat()
}
