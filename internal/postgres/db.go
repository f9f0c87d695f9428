package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// PoolOptions ngatur ukuran pool. Nol = default.
type PoolOptions struct {
	MaxConns    int32
	MinConns    int32
	PingTimeout time.Duration
}

const (
	defaultMaxConns    = 8
	defaultPingTimeout = 5 * time.Second
)

// ForWorkers sizes the pool so every consumer worker holds one connection
// with one spare for the health check.
func ForWorkers(workers int) PoolOptions {
	if workers < 1 {
		workers = 1
	}
	return PoolOptions{MaxConns: int32(workers) + 1, MinConns: 1}
}

func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = 1
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	return cfg, nil
}

// Connect opens the pool and pings once so a bad DSN fails at startup.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.WithFields(log.Fields{"max_conns": cfg.MaxConns, "min_conns": cfg.MinConns}).Info("postgres pool ready")
	return pool, nil
}
