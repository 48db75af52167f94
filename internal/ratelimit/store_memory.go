package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[Key]Window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[Key]Window)}
}

func (m *MemoryStore) Take(ctx context.Context, key Key, max int, window time.Duration, now time.Time) (Window, bool, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.WindowStart.Add(window)) {
		w = Window{Count: 1, WindowStart: now}
		m.windows[key] = w
		return w, true, nil
	}
	if w.Count >= max {
		return w, false, nil
	}
	w.Count++
	m.windows[key] = w
	return w, true, nil
}

func (m *MemoryStore) Give(ctx context.Context, key Key, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[key]; ok && w.Count > 0 {
		w.Count--
		m.windows[key] = w
	}
	return nil
}

func (m *MemoryStore) Peek(ctx context.Context, key Key) (Window, bool, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	return w, ok, nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, w := range m.windows {
		if !w.WindowStart.After(cutoff) {
			delete(m.windows, k)
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
