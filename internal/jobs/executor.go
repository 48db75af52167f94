package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"jobfit-backend/internal/analyses"
	"jobfit-backend/internal/analysisclient"
	"jobfit-backend/internal/shared/auth"
	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/storage/object"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	// DefaultTimeout bounds execution, measured from job creation.
	DefaultTimeout = 5 * time.Minute

	serviceTokenTTL = time.Hour
)

// errHalted stops execution quietly after another writer won the job.
var errHalted = errors.New("job taken over by another transition")

// Analyzer calls the external analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, req analysisclient.Request) (analysisclient.Result, error)
}

// Recorder stores the permanent analysis record.
type Recorder interface {
	Record(ctx context.Context, in analyses.RecordInput) (analyses.Analysis, error)
}

// TokenSigner mints the service-to-service credential.
type TokenSigner interface {
	Sign(claims auth.Claims, ttl time.Duration) (string, error)
}

// Executor drives a processing job through its checkpoints to a terminal state.
type Executor struct {
	Repo     Repo
	Objects  object.ObjectStore
	Analyzer Analyzer
	Recorder Recorder
	Signer   TokenSigner
	Cancels  *CancelRegistry

	Timeout        time.Duration
	AllowAnonymous bool
	// CancelPoll, when set, re-reads the job on this interval and aborts
	// execution once it has been cancelled elsewhere (worker processes).
	CancelPoll time.Duration
	Now        func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

// Execute runs one job. Failures of the job itself are recorded on the job;
// the returned error only reports that the job could not be loaded.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	job, err := e.Repo.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	defer e.discardResume(ctx, job)

	if job.Status == StatusPending {
		// Redelivered before the scheduler's start write was observed.
		job, err = e.Repo.Transition(ctx, jobID, []Status{StatusPending}, Update{
			Status:      StatusProcessing,
			Progress:    intPtr(10),
			CurrentStep: strPtr(StepStarting),
			StartedAt:   timePtr(e.now()),
		})
		if err != nil {
			e.stale(ctx, jobID, "start", job, err)
			return nil
		}
	}
	if job.Status != StatusProcessing {
		telemetry.Info("job.skip", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"job_id":     jobID,
			"status":     job.Status,
		})
		return nil
	}

	// The budget runs from creation on the executor's clock, so queue latency counts.
	remaining := job.CreatedAt.Add(e.timeout()).Sub(e.now())
	if remaining <= 0 {
		e.fail(ctx, job, context.DeadlineExceeded)
		return nil
	}
	runCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	defer e.Cancels.Register(jobID, cancel)()
	if e.CancelPoll > 0 {
		go e.watch(runCtx, jobID, cancel)
	}

	done := metrics.TrackInFlight()
	defer done()

	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()

	if runErr := e.run(runCtx, &job); runErr != nil && !errors.Is(runErr, errHalted) {
		e.fail(ctx, job, runErr)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, job *Job) error {
	if err := e.checkpoint(ctx, job, Checkpoint{Progress: 20, Step: StepPreparing, CompletedSteps: 0}); err != nil {
		return err
	}
	req, err := e.prepare(ctx, *job)
	if err != nil {
		return err
	}
	token, tokenErr := e.mint(*job)
	if tokenErr != nil {
		telemetry.Warn("job.credential_failed", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"job_id":     job.ID,
			"error":      tokenErr.Error(),
		})
	}
	req.Credential = token

	if err := e.checkpoint(ctx, job, Checkpoint{Progress: 40, Step: StepProcessing, CompletedSteps: 1}); err != nil {
		return err
	}
	if tokenErr != nil && !e.AllowAnonymous {
		return fmt.Errorf("service credential unavailable: %w", tokenErr)
	}
	result, err := e.Analyzer.Analyze(ctx, req)
	if err != nil {
		return err
	}

	if err := e.checkpoint(ctx, job, Checkpoint{Progress: 90, Step: StepFinalizing, CompletedSteps: 2}); err != nil {
		return err
	}
	e.record(ctx, *job, result)

	return e.complete(ctx, job, result)
}

func (e *Executor) prepare(ctx context.Context, job Job) (analysisclient.Request, error) {
	rc, err := e.Objects.Open(ctx, job.ResumeRef)
	if err != nil {
		return analysisclient.Request{}, fmt.Errorf("load resume: %w", err)
	}
	defer rc.Close()

	contentType, r, err := object.Sniff(rc)
	if err != nil {
		return analysisclient.Request{}, fmt.Errorf("read resume: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return analysisclient.Request{}, fmt.Errorf("read resume: %w", err)
	}
	return analysisclient.Request{
		FileName:    job.FileName,
		ContentType: contentType,
		File:        data,
		JobURL:      job.JobURL,
		Anonymize:   job.Anonymize,
	}, nil
}

func (e *Executor) mint(job Job) (string, error) {
	if e.Signer == nil {
		return "", errors.New("no signer configured")
	}
	return e.Signer.Sign(auth.Claims{
		UserID:    job.UserID,
		Email:     job.OwnerEmail,
		TokenType: "access",
	}, serviceTokenTTL)
}

// record is best-effort: the job completes even when history cannot be written.
func (e *Executor) record(ctx context.Context, job Job, result analysisclient.Result) {
	if e.Recorder == nil {
		return
	}
	_, err := e.Recorder.Record(context.WithoutCancel(ctx), analyses.RecordInput{
		UserID:     job.UserID,
		JobID:      job.ID,
		JobURL:     job.JobURL,
		FileName:   job.FileName,
		Anonymized: job.Anonymize,
		Result:     result,
	})
	if err != nil {
		telemetry.Error("job.persistence_failure", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"user_id":    job.UserID,
			"job_id":     job.ID,
			"error":      err.Error(),
		})
	}
}

func (e *Executor) complete(ctx context.Context, job *Job, result analysisclient.Result) error {
	raw := result.Raw
	if len(raw) == 0 {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		raw = encoded
	}

	completed, err := e.Repo.Transition(context.WithoutCancel(ctx), job.ID, []Status{StatusProcessing}, Update{
		Status:         StatusCompleted,
		Progress:       intPtr(100),
		CurrentStep:    strPtr(StepComplete),
		CompletedSteps: intPtr(TotalSteps),
		Result:         raw,
		CompletedAt:    timePtr(e.now()),
	})
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			e.stale(ctx, job.ID, string(StatusCompleted), completed, err)
			return errHalted
		}
		return fmt.Errorf("complete job: %w", err)
	}
	*job = completed

	metrics.IncJobsCompleted()
	if pt := completed.ProcessingTime(); pt != nil {
		metrics.ObserveJobDurationMs(*pt * 1000)
	}
	logTransition(ctx, completed, StatusProcessing)
	return nil
}

func (e *Executor) checkpoint(ctx context.Context, job *Job, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	updated, err := e.Repo.Checkpoint(context.WithoutCancel(ctx), job.ID, cp)
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			e.stale(ctx, job.ID, fmt.Sprintf("checkpoint:%d", cp.Progress), updated, err)
			return errHalted
		}
		return fmt.Errorf("checkpoint %d: %w", cp.Progress, err)
	}
	*job = updated
	return nil
}

func (e *Executor) fail(ctx context.Context, job Job, cause error) {
	msg := e.failureMessage(cause)
	failed, err := e.Repo.Transition(context.WithoutCancel(ctx), job.ID, []Status{StatusProcessing}, Update{
		Status:      StatusFailed,
		CurrentStep: strPtr(StepFailed),
		Error:       strPtr(msg),
		CompletedAt: timePtr(e.now()),
	})
	if err != nil {
		e.stale(ctx, job.ID, string(StatusFailed), failed, err)
		return
	}
	metrics.IncJobsFailed()
	logTransition(ctx, failed, StatusProcessing)
}

func (e *Executor) failureMessage(err error) string {
	var upstream *analysisclient.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return upstream.Detail
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Analysis timed out after %s", e.timeout())
	default:
		return err.Error()
	}
}

func (e *Executor) stale(ctx context.Context, jobID, attempted string, current Job, err error) {
	if !errors.Is(err, ErrStaleState) {
		telemetry.Error("job.write_failed", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"job_id":     jobID,
			"attempted":  attempted,
			"error":      err.Error(),
		})
		return
	}
	metrics.IncJobsStaleWrites()
	logStale(ctx, jobID, attempted, current)
}

// watch aborts execution once the stored job has been cancelled.
func (e *Executor) watch(ctx context.Context, jobID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(e.CancelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := e.Repo.Get(ctx, jobID)
			if err == nil && job.Status == StatusCancelled {
				cancel()
				return
			}
		}
	}
}

// discardResume deletes the résumé blob once the job is terminal, but only
// when the service saved it; presigned uploads stay with their owner.
func (e *Executor) discardResume(ctx context.Context, job Job) {
	if e.Objects == nil || job.ResumeRef == "" || !job.ResumeOwned {
		return
	}
	current, err := e.Repo.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil || !current.Status.Terminal() {
		return
	}
	if err := e.Objects.Delete(context.WithoutCancel(ctx), job.ResumeRef); err != nil {
		telemetry.Warn("job.resume_cleanup_failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}
}
