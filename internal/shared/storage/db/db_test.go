package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const testURL = "postgres://jobfit@localhost:5432/jobfit?sslmode=disable"

// withMockPool routes Connect to a sqlmock pool and records the parsed config.
func withMockPool(t *testing.T, pingErr error) (*pgx.ConnConfig, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	exp := mock.ExpectPing()
	if pingErr != nil {
		exp.WillReturnError(pingErr)
		mock.ExpectClose()
	}

	seen := &pgx.ConnConfig{}
	prev := openConfig
	openConfig = func(cfg pgx.ConnConfig, _ ...stdlib.OptionOpenDB) *sql.DB {
		*seen = cfg
		return pool
	}
	t.Cleanup(func() {
		openConfig = prev
		_ = pool.Close()
	})
	return seen, mock
}

func TestConnectConfiguresPool(t *testing.T) {
	seen, mock := withMockPool(t, nil)

	pool, err := Connect(context.Background(), testURL, DefaultServerOptions().WithMaxOpen(7))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := pool.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
	if seen.Database != "jobfit" || seen.RuntimeParams["application_name"] != "jobfit-api" {
		t.Fatalf("unexpected parsed config: db=%q params=%v", seen.Database, seen.RuntimeParams)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConnectClosesPoolWhenPingFails(t *testing.T) {
	_, mock := withMockPool(t, errors.New("connection refused"))

	if _, err := Connect(context.Background(), testURL, DefaultServerOptions()); err == nil {
		t.Fatalf("expected ping failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	for _, url := range []string{"  ", "postgres://[::1"} {
		if _, err := Connect(context.Background(), url, DefaultServerOptions()); err == nil {
			t.Fatalf("expected error for %q", url)
		}
	}
}

func TestOptionPresets(t *testing.T) {
	m := DefaultMigrateOptions()
	if m.MaxOpenConns != 1 || m.MaxIdleConns != 1 || m.AppName != "jobfit-migrate" {
		t.Fatalf("unexpected migrate options %+v", m)
	}
	s := DefaultServerOptions().WithMaxOpen(0)
	if s.MaxOpenConns != 10 || s.MaxIdleConns != 5 {
		t.Fatalf("zero override should be ignored, got %+v", s)
	}
	if s = s.WithMaxOpen(2); s.MaxIdleConns != 2 || s.ConnMaxLifetime != time.Hour {
		t.Fatalf("unexpected clamped options %+v", s)
	}
}

func TestPingRequiresPool(t *testing.T) {
	if err := Ping(context.Background(), nil, 0); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 4 {
		t.Fatalf("expected at least 4 migrations, got %d", len(entries))
	}
}
