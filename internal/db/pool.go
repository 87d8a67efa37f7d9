package db

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// Options configures the connection pool. Zero values keep the pgxpool defaults.
type Options struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// NewPool creates the pool and registers it on the fx lifecycle.
// Connecting and applying the schema happen on start.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, opts Options) (*pgxpool.Pool, error) {
	logger.Info("initializing database connection pool", zap.Int32("max_conns", opts.MaxConns))

	pool, err := newPool(opts)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return connect(ctx, logger, pool, opts.URL)
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})

	return pool, nil
}

// Connect opens a ready pool outside of fx, for one-shot tools like the seeder.
// The caller owns the returned pool.
func Connect(ctx context.Context, logger *zap.Logger, opts Options) (*pgxpool.Pool, error) {
	pool, err := newPool(opts)
	if err != nil {
		return nil, err
	}
	if err := connect(ctx, logger, pool, opts.URL); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// ApplySchema creates the tables and indexes if they don't exist yet
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
	}
	return nil
}

func newPool(opts Options) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL %s: %w", maskPassword(opts.URL), err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}
	return pool, nil
}

func connect(ctx context.Context, logger *zap.Logger, pool *pgxpool.Pool, databaseURL string) error {
	logger = logger.With(zap.String("url", maskPassword(databaseURL)))
	logger.Info("attempting to connect to database...")

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", zap.Error(err))
		return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach database. Check that it is running, that DATABASE_URL is correct and that the network allows the connection: %w", err)
	}
	if err := ApplySchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("database ready, schema applied")
	return nil
}

// maskPassword hides the password in a database URL for logging
func maskPassword(raw string) string {
	if raw == "" {
		return "<empty>"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
