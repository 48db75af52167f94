// Package ratelimit gates job admission with a fixed window that resets lazily.
// Each admission is a single atomic increment-and-check against the store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	DefaultMaxRequests = 4
	DefaultWindow      = 24 * time.Hour
	unknownIP          = "unknown"
)

// ErrRateLimited marks admission denials.
var ErrRateLimited = errors.New("rate limited")

// Key identifies who is being limited. Exactly one field is set.
type Key struct {
	UserID string
	IP     string
}

// KeyFor prefers the user id and falls back to the client IP.
func KeyFor(userID, ip string) Key {
	if id := strings.TrimSpace(userID); id != "" {
		return Key{UserID: id}
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = unknownIP
	}
	return Key{IP: ip}
}

// Kind is "user" or "ip".
func (k Key) Kind() string {
	if k.UserID != "" {
		return "user"
	}
	return "ip"
}

func (k Key) value() string {
	if k.UserID != "" {
		return k.UserID
	}
	return k.IP
}

func (k Key) String() string { return k.Kind() + ":" + k.value() }

// Window is the stored counter state for one key.
type Window struct {
	Count       int
	WindowStart time.Time
}

// Store persists windows. Take must consume a unit and report the resulting
// window in one atomic step, resetting windows with WindowStart <= now-window.
type Store interface {
	Take(ctx context.Context, key Key, max int, window time.Duration, now time.Time) (w Window, allowed bool, err error)
	Give(ctx context.Context, key Key, now time.Time) error
	Peek(ctx context.Context, key Key) (w Window, found bool, err error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
	Limit     int       `json:"limit"`
}

// DeniedError is returned by Admit when the window is exhausted.
type DeniedError struct {
	Key       Key
	Limit     int
	ResetTime time.Time
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s until %s", e.Key.Kind(), e.ResetTime.UTC().Format(time.RFC3339))
}

func (e *DeniedError) Unwrap() error { return ErrRateLimited }

// RetryAfter is the time until the window resets, at least one second.
func (e *DeniedError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetTime.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Limiter applies Max admissions per Window for each key.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Limiter. Non-positive max or window fall back to the defaults.
func New(store Store, max int, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{store: store, max: max, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

// Admit consumes one unit for key or returns *DeniedError.
func (l *Limiter) Admit(ctx context.Context, key Key) (Decision, error) {
	now := l.now().UTC()
	w, allowed, err := l.store.Take(ctx, key, l.max, l.window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit take: %w", err)
	}
	d := l.decision(w, allowed, now)
	if !allowed {
		metrics.IncRateLimitDenied(key.Kind())
		telemetry.Warn("ratelimit.denied", map[string]any{
			"key_kind":   key.Kind(),
			"count":      w.Count,
			"reset_time": d.ResetTime.Format(time.RFC3339),
		})
		return d, &DeniedError{Key: key, Limit: l.max, ResetTime: d.ResetTime}
	}
	return d, nil
}

// Refund returns a unit consumed by Admit.
func (l *Limiter) Refund(ctx context.Context, key Key) error {
	if err := l.store.Give(ctx, key, l.now().UTC()); err != nil {
		return fmt.Errorf("rate limit refund: %w", err)
	}
	return nil
}

// Status reports the current window for key without consuming.
func (l *Limiter) Status(ctx context.Context, key Key) (Decision, error) {
	now := l.now().UTC()
	w, found, err := l.store.Peek(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit peek: %w", err)
	}
	if !found || l.expired(w, now) {
		return Decision{Allowed: true, Remaining: l.max, ResetTime: now.Add(l.window), Limit: l.max}, nil
	}
	return l.decision(w, w.Count < l.max, now), nil
}

func (l *Limiter) expired(w Window, now time.Time) bool {
	return !now.Before(w.WindowStart.Add(l.window))
}

func (l *Limiter) decision(w Window, allowed bool, now time.Time) Decision {
	remaining := l.max - w.Count
	if remaining < 0 {
		remaining = 0
	}
	start := w.WindowStart
	if start.IsZero() {
		start = now
	}
	return Decision{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: start.Add(l.window).UTC(),
		Limit:     l.max,
	}
}
