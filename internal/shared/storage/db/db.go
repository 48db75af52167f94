// Package db opens the shared Postgres pool and applies embedded migrations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"jobfit-backend/internal/shared/telemetry"
)

const defaultPingTimeout = 5 * time.Second

// Options sizes the pool. Zero fields keep the database/sql defaults,
// except PingTimeout which falls back to five seconds.
type Options struct {
	AppName         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultServerOptions suits the long-running API and worker processes.
func DefaultServerOptions() Options {
	return Options{
		AppName:         "jobfit-api",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     defaultPingTimeout,
	}
}

// DefaultMigrateOptions suits the one-shot migrate command.
func DefaultMigrateOptions() Options {
	o := DefaultServerOptions()
	o.AppName = "jobfit-migrate"
	return o.WithMaxOpen(1)
}

// WithMaxOpen caps the pool at n when n is positive, shrinking idle to match.
func (o Options) WithMaxOpen(n int) Options {
	if n <= 0 {
		return o
	}
	o.MaxOpenConns = n
	o.MaxIdleConns = min(o.MaxIdleConns, n)
	return o
}

// openConfig is swapped in tests to avoid a real server.
var openConfig = stdlib.OpenDB

// Connect parses databaseURL with pgx, opens a pool and pings it.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("db: DATABASE_URL is empty")
	}
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse DATABASE_URL: %w", err)
	}
	if opts.AppName != "" {
		if cfg.RuntimeParams == nil {
			cfg.RuntimeParams = map[string]string{}
		}
		cfg.RuntimeParams["application_name"] = opts.AppName
	}

	pool := openConfig(*cfg)
	configure(pool, opts)
	if err := Ping(ctx, pool, opts.PingTimeout); err != nil {
		_ = pool.Close()
		return nil, err
	}

	s := pool.Stats()
	telemetry.Info("db.connected", map[string]any{
		"host":     cfg.Host,
		"database": cfg.Database,
		"app":      opts.AppName,
		"max_open": s.MaxOpenConnections,
	})
	return pool, nil
}

// Ping checks connectivity, bounded by timeout.
func Ping(ctx context.Context, pool *sql.DB, timeout time.Duration) error {
	if pool == nil {
		return errors.New("db: not configured")
	}
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	return nil
}

func configure(pool *sql.DB, o Options) {
	if o.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(o.ConnMaxLifetime)
	}
	if o.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(o.ConnMaxIdleTime)
	}
}
