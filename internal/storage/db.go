// Package db provides PostgreSQL access for the trend-digest-bot.
//
// This package contains:
//   - DB: connection pool wrapper with Ping and Migrate
//   - Materials: insert, URL dedup, pgvector similarity and date range search
//   - Sources, subscriptions and the persistent digest cache
//
// Embeddings are stored in a pgvector column and compared with the cosine
// distance operator.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/platform/worker"
)

// DB wraps a PostgreSQL connection pool and provides repository methods.
type DB struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger

	searchLimit int
}

// PoolOptions configures the database connection pool. Zero values keep
// the pgxpool defaults parsed from the DSN.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
	// SearchLimit caps similarity search results.
	SearchLimit int
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          defaultMaxConns,
		MinConns:          defaultMinConns,
		MaxConnIdleTime:   defaultMaxConnIdleTime,
		MaxConnLifetime:   defaultMaxConnLifetime,
		HealthCheckPeriod: defaultHealthCheckPeriod,
		SearchLimit:       DefaultSearchLimit,
	}
}

// New connects with DefaultPoolOptions.
func New(ctx context.Context, dsn string, logger *zerolog.Logger) (*DB, error) {
	return NewWithOptions(ctx, dsn, DefaultPoolOptions(), logger)
}

// NewWithOptions connects to dsn, waiting for the server to come up.
func NewWithOptions(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	opts.apply(cfg)

	pool, err := dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	limit := opts.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	return &DB{Pool: pool, Logger: logger, searchLimit: limit}, nil
}

func (o PoolOptions) apply(cfg *pgxpool.Config) {
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}

	if o.MinConns > 0 {
		cfg.MinConns = o.MinConns
	}

	if o.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = o.MaxConnIdleTime
	}

	if o.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = o.MaxConnLifetime
	}

	if o.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = o.HealthCheckPeriod
	}
}

// dial opens the pool and pings it, backing off between attempts.
func dial(ctx context.Context, cfg *pgxpool.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	delay := ConnectionRetrySleep

	var lastErr error

	for attempt := 1; attempt <= maxConnectionRetries; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}

			pool.Close()
		}

		lastErr = err

		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("postgres unavailable")

		if err := worker.Wait(ctx, delay); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		delay = min(delay*2, maxConnectionRetrySleep)
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", maxConnectionRetries, lastErr)
}

// Ping checks the connection; used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
