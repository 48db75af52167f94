package analyses

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]Analysis
	byJob map[string]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:  make(map[string]Analysis),
		byJob: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, a Analysis) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byJob[a.JobID]; ok {
		return r.byID[existing], nil
	}
	r.byID[a.ID] = a
	r.byJob[a.JobID] = a.ID
	return a, nil
}

func (r *MemoryRepo) GetForOwner(ctx context.Context, id, ownerID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok || a.UserID != ownerID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) GetByJob(ctx context.Context, jobID, ownerID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	id, ok := r.byJob[jobID]
	r.mu.RUnlock()
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return r.GetForOwner(ctx, id, ownerID)
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	owned := make([]Analysis, 0)
	for _, a := range r.byID {
		if a.UserID == ownerID {
			owned = append(owned, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	total := len(owned)
	if offset >= total {
		return []Analysis{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return owned[offset:end], total, nil
}

func (r *MemoryRepo) DeleteOwned(ctx context.Context, ownerID string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if a, ok := r.byID[id]; !ok || a.UserID != ownerID {
			return 0, ErrNotFound
		}
	}
	for _, id := range ids {
		delete(r.byJob, r.byID[id].JobID)
		delete(r.byID, id)
	}
	return len(ids), nil
}

var _ Repo = (*MemoryRepo)(nil)
