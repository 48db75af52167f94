package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"jobfit-backend/internal/queue"
	"jobfit-backend/internal/shared/telemetry"
)

// ErrDispatcherClosed is returned once a dispatcher stopped accepting jobs.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Runner executes a dispatched job.
type Runner interface {
	Execute(ctx context.Context, jobID string) error
}

// LocalDispatcher runs each job in its own goroutine, at most maxConcurrent at a time.
// Executions are detached from the dispatching request.
type LocalDispatcher struct {
	runner Runner
	sem    *semaphore.Weighted
	done   chan string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher constructs a LocalDispatcher.
func NewLocalDispatcher(runner Runner, maxConcurrent int) *LocalDispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &LocalDispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		done:   make(chan string, 64),
	}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	bg := detach(ctx)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(bg, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		if err := d.runner.Execute(bg, jobID); err != nil {
			telemetry.Error("job.execute_failed", map[string]any{
				"request_id": RequestIDFromContext(bg),
				"job_id":     jobID,
				"error":      err.Error(),
			})
		}
		select {
		case d.done <- jobID:
		default:
		}
	}()
	return nil
}

// Done reports finished job ids. Sends are dropped when nobody is reading.
func (d *LocalDispatcher) Done() <-chan string { return d.done }

// Wait blocks until every dispatched execution has returned or ctx ends.
func (d *LocalDispatcher) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight ones.
func (d *LocalDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// QueueDispatcher publishes jobs for a worker process to execute.
type QueueDispatcher struct {
	Client queue.Client
	Now    func() time.Time
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	if d.Now != nil {
		now = d.Now().UTC()
	}
	msg := queue.Message{
		JobID:      jobID,
		RequestID:  RequestIDFromContext(ctx),
		EnqueuedAt: now,
		Version:    queue.MessageVersion,
	}
	if err := d.Client.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	telemetry.Info("job.enqueued", map[string]any{
		"request_id": msg.RequestID,
		"job_id":     jobID,
	})
	return nil
}

var (
	_ Dispatcher = (*LocalDispatcher)(nil)
	_ Dispatcher = (*QueueDispatcher)(nil)
	_ Runner     = (*Executor)(nil)
)
