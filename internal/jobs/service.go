package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobfit-backend/internal/ratelimit"
	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/storage/object"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Admitter gates job creation.
type Admitter interface {
	Admit(ctx context.Context, key ratelimit.Key) (ratelimit.Decision, error)
	Refund(ctx context.Context, key ratelimit.Key) error
}

// Dispatcher hands an accepted job to background execution. It must not block on the execution itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// Service creates, reads, and cancels jobs.
type Service struct {
	Repo       Repo
	Limiter    Admitter
	Dispatcher Dispatcher
	Objects    object.ObjectStore
	Cancels    *CancelRegistry
	Now        func() time.Time
	NewID      func() string
}

// CreateInput is a request to analyze one résumé against one posting.
// Exactly one of Resume or ResumeRef is expected.
type CreateInput struct {
	OwnerID    string
	OwnerEmail string
	ClientIP   string
	Resume     io.Reader
	FileName   string
	FileSize   int64
	ResumeRef  string
	JobURL     string
	Anonymize  bool
}

// CreateResult carries the created job and the caller's remaining quota.
type CreateResult struct {
	Job      Job
	Decision ratelimit.Decision
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Create admits, persists, and dispatches a job. The returned job is already processing.
// Quota is refunded when any step before dispatch fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	in.JobURL = strings.TrimSpace(in.JobURL)
	in.ResumeRef = strings.TrimSpace(in.ResumeRef)
	if err := validateCreate(in); err != nil {
		return CreateResult{}, err
	}
	if in.Resume == nil {
		if err := s.checkResumeRef(ctx, in.ResumeRef); err != nil {
			return CreateResult{}, err
		}
	}

	key := ratelimit.KeyFor(in.OwnerID, in.ClientIP)
	decision, err := s.Limiter.Admit(ctx, key)
	if err != nil {
		return CreateResult{Decision: decision}, err
	}

	job, err := s.persist(ctx, in)
	if err != nil {
		s.refund(ctx, key, err)
		return CreateResult{Decision: decision}, err
	}

	now := s.now()
	started, err := s.Repo.Transition(ctx, job.ID, []Status{StatusPending}, Update{
		Status:         StatusProcessing,
		Progress:       intPtr(10),
		CurrentStep:    strPtr(StepStarting),
		CompletedSteps: intPtr(0),
		StartedAt:      timePtr(now),
	})
	if err != nil {
		s.abandon(ctx, job, err)
		s.refund(ctx, key, err)
		return CreateResult{Decision: decision}, fmt.Errorf("start job: %w", err)
	}
	logTransition(ctx, started, StatusPending)

	if err := s.Dispatcher.Dispatch(ctx, started.ID); err != nil {
		s.abandon(ctx, started, err)
		s.refund(ctx, key, err)
		return CreateResult{Decision: decision}, fmt.Errorf("dispatch job: %w", err)
	}

	metrics.IncJobsCreated()
	return CreateResult{Job: started, Decision: decision}, nil
}

func (s *Service) persist(ctx context.Context, in CreateInput) (Job, error) {
	ref, size, name := in.ResumeRef, in.FileSize, strings.TrimSpace(in.FileName)
	if in.Resume != nil {
		obj, err := s.Objects.Save(ctx, in.OwnerID, name, in.Resume)
		if err != nil {
			return Job{}, fmt.Errorf("save resume: %w", err)
		}
		ref, size = obj.Key, obj.Size
	}
	if name == "" {
		name = path.Base(ref)
	}

	now := s.now()
	job := Job{
		ID:          s.newID(),
		UserID:      in.OwnerID,
		OwnerEmail:  in.OwnerEmail,
		Status:      StatusPending,
		CurrentStep: StepQueued,
		TotalSteps:  TotalSteps,
		FileName:    name,
		FileSize:    size,
		ResumeRef:   ref,
		ResumeOwned: in.Resume != nil,
		JobURL:      in.JobURL,
		Anonymize:   in.Anonymize,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		if in.Resume != nil {
			_ = s.Objects.Delete(context.WithoutCancel(ctx), ref)
		}
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// checkResumeRef confirms a presigned upload landed before any quota is spent.
func (s *Service) checkResumeRef(ctx context.Context, ref string) error {
	rc, err := s.Objects.Open(ctx, ref)
	if errors.Is(err, object.ErrNotFound) {
		return &ValidationError{Field: "resumeRef", Message: "no uploaded résumé found for resumeRef"}
	}
	if err != nil {
		return fmt.Errorf("check resume: %w", err)
	}
	_ = rc.Close()
	return nil
}

// abandon marks a job that never reached the executor as failed.
func (s *Service) abandon(ctx context.Context, job Job, cause error) {
	ctx = context.WithoutCancel(ctx)
	failed, err := s.Repo.Transition(ctx, job.ID, Active, Update{
		Status:      StatusFailed,
		CurrentStep: strPtr(StepFailed),
		Error:       strPtr("Failed to start analysis"),
		CompletedAt: timePtr(s.now()),
	})
	if err != nil {
		telemetry.Error("job.abandon_failed", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"job_id":     job.ID,
			"cause":      cause.Error(),
			"error":      err.Error(),
		})
		return
	}
	metrics.IncJobsFailed()
	logTransition(ctx, failed, job.Status)
}

func (s *Service) refund(ctx context.Context, key ratelimit.Key, cause error) {
	if err := s.Limiter.Refund(context.WithoutCancel(ctx), key); err != nil {
		telemetry.Error("ratelimit.refund_failed", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"key_kind":   key.Kind(),
			"cause":      cause.Error(),
			"error":      err.Error(),
		})
	}
}

func validateCreate(in CreateInput) error {
	if in.Resume == nil && in.ResumeRef == "" {
		return &ValidationError{Field: "resume", Message: "a résumé file or resumeRef is required"}
	}
	if in.Resume == nil && !object.OwnedBy(in.ResumeRef, in.OwnerID) {
		return &ValidationError{Field: "resumeRef", Message: "resumeRef does not belong to the caller"}
	}
	if in.JobURL == "" {
		return &ValidationError{Field: "jobUrl", Message: "job posting URL is required"}
	}
	u, err := url.Parse(in.JobURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "jobUrl", Message: "job posting URL must be an absolute http(s) URL"}
	}
	return nil
}

// Get returns a job owned by ownerID. Jobs owned by others are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, id, ownerID string) (Job, error) {
	return s.Repo.GetForOwner(ctx, id, ownerID)
}

// List returns the owner's jobs, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Job, int, error) {
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

// Cancel moves an owned, non-terminal job to cancelled and signals its execution.
func (s *Service) Cancel(ctx context.Context, id, ownerID string) (Job, error) {
	job, err := s.Repo.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return Job{}, err
	}
	if job.Status.Terminal() {
		return job, ErrInvalidState
	}

	cancelled, err := s.Repo.Transition(ctx, id, Active, Update{
		Status:      StatusCancelled,
		CurrentStep: strPtr(StepCancelled),
		Error:       strPtr(CancelledMessage),
		CompletedAt: timePtr(s.now()),
	})
	if errors.Is(err, ErrStaleState) {
		return cancelled, ErrInvalidState
	}
	if err != nil {
		return Job{}, err
	}

	signalled := s.Cancels.Cancel(id)
	metrics.IncJobsCancelled()
	logTransition(ctx, cancelled, job.Status)
	telemetry.Info("job.cancelled", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     id,
		"signalled":  signalled,
	})
	return cancelled, nil
}
