package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGStore persists windows in the rate_limits table. Each key column carries a
// partial unique index, so the upsert targets whichever column the key uses.
type PGStore struct {
	DB *sql.DB
}

const takeSQL = `
INSERT INTO rate_limits (%[1]s, request_count, window_start, updated_at)
VALUES ($1, 1, $2, $2)
ON CONFLICT (%[1]s) WHERE %[1]s IS NOT NULL DO UPDATE SET
    request_count = CASE WHEN rate_limits.window_start <= $3 THEN 1 ELSE rate_limits.request_count + 1 END,
    window_start  = CASE WHEN rate_limits.window_start <= $3 THEN $2 ELSE rate_limits.window_start END,
    updated_at    = $2
WHERE rate_limits.window_start <= $3 OR rate_limits.request_count < $4
RETURNING request_count, window_start`

func column(key Key) string {
	if key.UserID != "" {
		return "user_id"
	}
	return "ip_address"
}

func (s *PGStore) Take(ctx context.Context, key Key, max int, window time.Duration, now time.Time) (Window, bool, error) {
	var w Window
	query := fmt.Sprintf(takeSQL, column(key))
	err := s.DB.QueryRowContext(ctx, query, key.value(), now, now.Add(-window), max).Scan(&w.Count, &w.WindowStart)
	if err == nil {
		return w, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Window{}, false, err
	}
	// The conditional upsert skipped the row: the window is full.
	w, _, err = s.Peek(ctx, key)
	if err != nil {
		return Window{}, false, err
	}
	return w, false, nil
}

func (s *PGStore) Give(ctx context.Context, key Key, now time.Time) error {
	query := fmt.Sprintf(`UPDATE rate_limits SET request_count = GREATEST(request_count - 1, 0), updated_at = $2 WHERE %s = $1`, column(key))
	_, err := s.DB.ExecContext(ctx, query, key.value(), now)
	return err
}

func (s *PGStore) Peek(ctx context.Context, key Key) (Window, bool, error) {
	var w Window
	query := fmt.Sprintf(`SELECT request_count, window_start FROM rate_limits WHERE %s = $1`, column(key))
	err := s.DB.QueryRowContext(ctx, query, key.value()).Scan(&w.Count, &w.WindowStart)
	if errors.Is(err, sql.ErrNoRows) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	return w, true, nil
}

func (s *PGStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ Store = (*PGStore)(nil)
