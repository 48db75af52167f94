package jobs

import (
	"context"
	"sync"
)

// CancelRegistry maps running jobs to the cancel func of their execution context.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Register records cancel for jobID and returns the matching unregister.
func (r *CancelRegistry) Register(jobID string, cancel context.CancelFunc) func() {
	if r == nil {
		return func() {}
	}
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.cancels, jobID)
		r.mu.Unlock()
	}
}

// Cancel signals the execution of jobID, reporting whether one was running here.
func (r *CancelRegistry) Cancel(jobID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
