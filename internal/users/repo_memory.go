package users

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo backs dev runs without a database.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]User{}}
}

func (r *MemoryRepo) RecordLogin(ctx context.Context, u User, at time.Time) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.rows[u.ID]
	u.CreatedAt, u.LoginCount = at, 1
	if seen {
		u.CreatedAt, u.LoginCount = prev.CreatedAt, prev.LoginCount+1
	}
	u.LastLoginAt = at
	r.rows[u.ID] = u
	return u, nil
}

func (r *MemoryRepo) Find(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	u, ok := r.rows[id]
	r.mu.Unlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
