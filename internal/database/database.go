// Package database owns the shared Postgres connection pool. The tracking and
// feed-state stores borrow the pool instead of opening their own connections;
// an empty DSN yields the no-op provider, which keeps every store in memory.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Provider hands out the shared pool and closes it on shutdown.
type Provider interface {
	// Pool returns the live pool, or nil when persistence is disabled.
	Pool() *pgxpool.Pool
	Close()
}

// PostgresProvider is the pgxpool-backed Provider.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*PostgresProvider, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

// Pool returns the underlying pool.
func (p *PostgresProvider) Pool() *pgxpool.Pool {
	return p.pool
}

// Close releases the pool.
func (p *PostgresProvider) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// NoOpProvider disables persistence. Stores fall back to memory.
type NoOpProvider struct{}

// Pool returns nil.
func (NoOpProvider) Pool() *pgxpool.Pool { return nil }

// Close does nothing.
func (NoOpProvider) Close() {}
