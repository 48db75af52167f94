package analyses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobfit-backend/internal/shared/telemetry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBulkDelete    = 100
)

// Service owns analysis records.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Record stores the outcome of a completed job.
func (s *Service) Record(ctx context.Context, in RecordInput) (Analysis, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.JobID) == "" {
		return Analysis{}, fmt.Errorf("%w: user and job are required", ErrInvalidInput)
	}
	a := FromResult(uuid.NewString(), in, s.now())
	stored, err := s.Repo.Create(ctx, a)
	if err != nil {
		return Analysis{}, fmt.Errorf("store analysis: %w", err)
	}
	telemetry.Info("analysis.recorded", map[string]any{
		"analysis_id": stored.ID,
		"job_id":      stored.JobID,
		"user_id":     stored.UserID,
		"match_score": stored.MatchScore,
	})
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id, ownerID string) (Analysis, error) {
	return s.Repo.GetForOwner(ctx, id, ownerID)
}

func (s *Service) GetByJob(ctx context.Context, jobID, ownerID string) (Analysis, error) {
	return s.Repo.GetByJob(ctx, jobID, ownerID)
}

// List returns the owner's history newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// BulkDelete removes every id or none.
func (s *Service) BulkDelete(ctx context.Context, ownerID string, ids []string) (int, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, fmt.Errorf("%w: analysisIds must not be empty", ErrInvalidInput)
	}
	if len(unique) > maxBulkDelete {
		return 0, fmt.Errorf("%w: at most %d analyses per request", ErrInvalidInput, maxBulkDelete)
	}
	n, err := s.Repo.DeleteOwned(ctx, ownerID, unique)
	if err != nil {
		return 0, err
	}
	telemetry.Info("analysis.bulk_deleted", map[string]any{"user_id": ownerID, "deleted": n})
	return n, nil
}
