package jobs

import "context"

// Repo persists jobs. Transition and Checkpoint are conditional writes: they
// return ErrStaleState instead of overwriting a state they did not expect.
type Repo interface {
	Create(ctx context.Context, j Job) error
	Get(ctx context.Context, id string) (Job, error)
	GetForOwner(ctx context.Context, id, ownerID string) (Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Job, int, error)
	Transition(ctx context.Context, id string, from []Status, u Update) (Job, error)
	Checkpoint(ctx context.Context, id string, cp Checkpoint) (Job, error)
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
