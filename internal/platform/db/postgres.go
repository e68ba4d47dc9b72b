// Package db manages the PostgreSQL connection pool.
package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palisade-app/palisade/internal/shared"
)

// New creates a new PostgreSQL connection pool and verifies connectivity.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Lazy defers pool construction until first use. A missing DSN does not stop
// process startup; every store-backed call instead fails with a diagnostic.
type Lazy struct {
	dsn string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewLazy wraps dsn. An empty dsn yields a Lazy that always fails Acquire.
func NewLazy(dsn string) *Lazy {
	return &Lazy{dsn: dsn}
}

// Configured reports whether a DSN was supplied.
func (l *Lazy) Configured() bool {
	return l.dsn != ""
}

// Acquire returns the pool, connecting on first call.
func (l *Lazy) Acquire(ctx context.Context) (*pgxpool.Pool, error) {
	if l.dsn == "" {
		return nil, fmt.Errorf("%w: store not configured (PG_DSN unset)", shared.ErrStoreUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pool != nil {
		return l.pool, nil
	}

	pool, err := New(ctx, l.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	l.pool = pool
	return pool, nil
}

// Close releases the pool if it was ever opened.
func (l *Lazy) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pool != nil {
		l.pool.Close()
		l.pool = nil
	}
}
