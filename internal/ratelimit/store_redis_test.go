package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStoreWindow(t *testing.T) {
	store, mr := newRedisStore(t)
	l, clk := newTestLimiter(store)
	key := KeyFor("user-1", "")
	windowStart := clk.Now()

	for i := 0; i < 4; i++ {
		d, err := l.Admit(context.Background(), key)
		if err != nil {
			t.Fatalf("admit %d: %v", i+1, err)
		}
		if d.Remaining != 3-i {
			t.Fatalf("remaining = %d, want %d", d.Remaining, 3-i)
		}
	}
	_, err := l.Admit(context.Background(), key)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if !denied.ResetTime.Equal(windowStart.Add(24 * time.Hour)) {
		t.Fatalf("resetTime = %v", denied.ResetTime)
	}
	if ttl := mr.TTL(redisKey(key)); ttl <= 0 || ttl > 24*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := l.Refund(context.Background(), key); err != nil {
		t.Fatalf("refund: %v", err)
	}
	st, err := l.Status(context.Background(), key)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Remaining != 1 {
		t.Fatalf("remaining after refund = %d", st.Remaining)
	}

	clk.Advance(24 * time.Hour)
	if _, err := l.Admit(context.Background(), key); err != nil {
		t.Fatalf("admit after reset: %v", err)
	}
}

func TestRedisStorePeekMissing(t *testing.T) {
	store, _ := newRedisStore(t)
	_, found, err := store.Peek(context.Background(), Key{IP: "1.1.1.1"})
	if err != nil || found {
		t.Fatalf("Peek missing = found %v, err %v", found, err)
	}
}
