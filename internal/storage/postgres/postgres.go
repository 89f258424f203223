// Package postgres persists the turn core in PostgreSQL through pgx v5. A
// Store maps each unit of work to one pgx transaction; repositories read and
// write guild-scoped rows inside it.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/guildturn/internal/config"
)

// Pool is the turn server's connection pool. Every connection reports
// application name so guild turn sessions are visible in pg_stat_activity.
type Pool struct {
	pool *pgxpool.Pool
	app  string
}

// NewPool connects to the database described by cfg.
//
// Precondition: cfg holds valid connection parameters; app is non-empty.
// Postcondition: Returns a pinged Pool or a non-nil error; on error no
// connections are left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, app string) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = app

	db, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("opening %s pool: %w", app, err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database as %s: %w", app, err)
	}
	return &Pool{pool: db, app: app}, nil
}

// PoolStats is a point-in-time view of connection usage.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// Stats reports current connection usage.
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

// Health pings the database within timeout. A failure carries the pool's
// usage so an exhausted pool can be told from an unreachable server.
//
// Precondition: The pool must not be closed.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		s := p.Stats()
		return fmt.Errorf("%s pool unhealthy (%d/%d conns in use): %w", p.app, s.Acquired, s.Max, err)
	}
	return nil
}

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
