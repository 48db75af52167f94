package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.Mutex
	byID map[string]Job
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job), now: time.Now}
}

func (r *MemoryRepo) Create(ctx context.Context, j Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[j.ID] = clone(j)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(j), nil
}

func (r *MemoryRepo) GetForOwner(ctx context.Context, id, ownerID string) (Job, error) {
	j, err := r.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if j.UserID != ownerID {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Job, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.Lock()
	owned := make([]Job, 0)
	for _, j := range r.byID {
		if j.UserID == ownerID {
			owned = append(owned, clone(j))
		}
	}
	r.mu.Unlock()

	sort.Slice(owned, func(a, b int) bool { return owned[a].CreatedAt.After(owned[b].CreatedAt) })
	total := len(owned)
	if offset >= total {
		return []Job{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return owned[offset:end], total, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, id string, from []Status, u Update) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if !statusIn(j.Status, from) {
		return clone(j), ErrStaleState
	}
	u.apply(&j, r.now().UTC())
	r.byID[id] = j
	return clone(j), nil
}

func (r *MemoryRepo) Checkpoint(ctx context.Context, id string, cp Checkpoint) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if j.Status != StatusProcessing || cp.Progress < j.Progress {
		return clone(j), ErrStaleState
	}
	j.Progress = cp.Progress
	j.CurrentStep = cp.Step
	j.CompletedSteps = cp.CompletedSteps
	j.UpdatedAt = r.now().UTC()
	r.byID[id] = j
	return clone(j), nil
}

func clone(j Job) Job {
	if j.Result != nil {
		j.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}

var _ Repo = (*MemoryRepo)(nil)
