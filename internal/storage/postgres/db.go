package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

// DB wraps the pgx connection pool with transaction helpers
type DB struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// Connect opens the connection pool and verifies the database is reachable
func Connect(ctx context.Context, config *common.DatabaseConfig, logger arbor.ILogger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if config.PoolMin > 0 {
		poolConfig.MinConns = int32(config.PoolMin)
	}
	if config.PoolMax > 0 {
		poolConfig.MaxConns = int32(config.PoolMax)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	logger.Info().
		Int("pool_min", config.PoolMin).
		Int("pool_max", config.PoolMax).
		Msg("Database connected")
	return &DB{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for direct queries
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Close releases all connections
func (d *DB) Close() {
	d.pool.Close()
}

// Ping verifies connectivity, used by the health endpoint
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
