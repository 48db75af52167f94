package analyses

import "context"

// Repo defines persistence operations for analyses.
type Repo interface {
	// Create is idempotent per job id and returns the stored record.
	Create(ctx context.Context, a Analysis) (Analysis, error)
	GetForOwner(ctx context.Context, id, ownerID string) (Analysis, error)
	GetByJob(ctx context.Context, jobID, ownerID string) (Analysis, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, int, error)
	// DeleteOwned removes all ids or none, returning ErrNotFound if any id is missing or foreign.
	DeleteOwned(ctx context.Context, ownerID string, ids []string) (int, error)
}
