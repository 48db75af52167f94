package identity

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in memory and is safe for concurrent use.
type MemorySessionStore struct {
	mu    sync.RWMutex
	items map[string]SessionRecord
	now   func() time.Time
}

// NewMemorySessionStore constructs a MemorySessionStore.
func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{items: make(map[string]SessionRecord), now: now}
}

func (m *MemorySessionStore) Create(ctx context.Context, s SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return SessionRecord{}, err
	}
	m.mu.RLock()
	s, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		m.mu.Lock()
		delete(m.items, id)
		m.mu.Unlock()
		return SessionRecord{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
