// Package postgres opens the connection pool behind the postgres blob store.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rx3lixir/bijoy/internal/config"
)

const (
	defaultConnectTimeout = 3 * time.Second
	maxConns              = 8
)

// Connect creates and pings a pool for the configured database
func Connect(parentCtx context.Context, params config.StorageParams, log *slog.Logger) (*pgxpool.Pool, error) {
	timeout := defaultConnectTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(params.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres at %s:%d: %w", params.Host, params.Port, err)
	}

	log.Info("database connection established", "host", params.Host, "db", params.Name)
	return pool, nil
}
