package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the pool's query logging.
type Options struct {
	// MinLogDuration suppresses log lines for successful queries faster
	// than this. Zero logs every query.
	MinLogDuration time.Duration
	// LogArgs includes statement arguments in query logs.
	LogArgs bool
	// MaxConns overrides the pool size when positive.
	MaxConns int32
}

// NewPool opens a pgx pool whose queries are traced by otelpgx and logged
// through the context logger, then verifies connectivity.
func NewPool(ctx context.Context, url string, opts ...Options) (*pgxpool.Pool, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = wrapQueryTracer(otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()), o)
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
