package workerproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"jobfit-backend/internal/jobs"
	"jobfit-backend/internal/queue"
	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency = 4
	receiveBackoff     = time.Second
)

// Worker polls a queue and executes each received job.
type Worker struct {
	Consumer    queue.Consumer
	Runner      jobs.Runner
	Concurrency int
}

// Run polls until ctx is cancelled, then waits for in-flight jobs up to shutdownTimeout.
func (w *Worker) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{"concurrency": concurrency})

poll:
	for ctx.Err() == nil {
		deliveries, err := w.Consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
			case <-time.After(receiveBackoff):
			}
			continue
		}

		for _, d := range deliveries {
			if err := sem.Acquire(ctx, 1); err != nil {
				break poll
			}
			wg.Add(1)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer sem.Release(1)
				w.handle(context.WithoutCancel(ctx), d)
			}(d)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout_ms": shutdownTimeout.Milliseconds()})
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
		return context.DeadlineExceeded
	}
}

// handle acknowledges every message it could decode or run; job failures live on the job record.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	fields := map[string]any{
		"sqs_message_id": d.ID,
		"receive_count":  d.ReceiveCount,
	}

	msg, err := HandleMessage(ctx, w.Runner, d.Body)
	fields["job_id"] = msg.JobID
	if msg.RequestID != "" {
		fields["request_id"] = msg.RequestID
	}

	switch {
	case err == nil:
		metrics.IncWorkerMessage("completed")
		telemetry.Info("worker.job.completed", fields)
	case Unrecoverable(err):
		fp := fingerprint(d.Body)
		fields["body_len"] = fp.Len
		fields["body_sha256"] = fp.SHA256
		fields["error"] = err.Error()
		metrics.IncWorkerMessage("unrecoverable")
		telemetry.Error("worker.job.unrecoverable", fields)
	default:
		// retried after the visibility timeout
		fields["error"] = err.Error()
		metrics.IncWorkerMessage("failed")
		telemetry.Error("worker.job.failed", fields)
		return
	}

	if err := w.Consumer.Delete(ctx, d); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.delete_failed", fields)
	}
}
