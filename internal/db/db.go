// Package db opens the Postgres pool and applies the embedded schema migrations.
package db

import (
	"context"
	"fmt"
	"strings"

	"blockminds/internal/config"
	"blockminds/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	parsePoolConfig = pgxpool.ParseConfig
	newPool         = pgxpool.NewWithConfig
)

// InitPostgres builds a pool from cfg and verifies it with a ping.
func InitPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: database.url is required", domain.ErrConfiguration)
	}

	poolConfig, err := parsePoolConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %v", domain.ErrConfiguration, err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := newPool(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
