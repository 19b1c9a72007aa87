// Package postgres persists the quiz catalog, per-game results, and
// cumulative player stats over a pgx v5 connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/quizrace/internal/config"
)

// connectTimeout bounds the initial reachability ping so a bad database
// address fails startup quickly instead of hanging the server boot.
const connectTimeout = 5 * time.Second

// Pool wraps the pgx connection pool shared by the question and result
// repositories, with health-check and lifecycle methods.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool opens a connection pool from the database configuration and
// verifies the database is reachable before returning.
//
// Precondition: cfg must contain valid connection parameters.
// Postcondition: Returns a Pool ready for queries, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Health reports whether the database answers a ping within the timeout.
// The game server runs this periodically so a dead pool shows up in the
// logs before a game tries to persist into it.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for the repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
