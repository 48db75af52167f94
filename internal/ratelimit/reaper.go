package ratelimit

import (
	"context"
	"time"

	"jobfit-backend/internal/shared/telemetry"
)

// Reaper periodically deletes windows that can no longer affect admission.
type Reaper struct {
	Store    Store
	Window   time.Duration
	Interval time.Duration
	Now      func() time.Time
}

// Run blocks until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs a single purge pass.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	window := r.Window
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := now().UTC().Add(-window)
	n, err := r.Store.PurgeExpired(ctx, cutoff)
	if err != nil {
		telemetry.Error("ratelimit.reap_failed", map[string]any{"error": err.Error()})
		return 0
	}
	if n > 0 {
		telemetry.Info("ratelimit.reaped", map[string]any{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)})
	}
	return n
}
