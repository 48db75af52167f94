// Package workerproc decodes queued job messages and runs them on a worker.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"jobfit-backend/internal/jobs"
	"jobfit-backend/internal/queue"
)

var errNoRunner = errors.New("workerproc: job runner not configured")

// Fingerprint identifies a body in logs without printing it.
type Fingerprint struct {
	Len    int
	SHA256 string
}

func fingerprint(body string) Fingerprint {
	if body == "" {
		return Fingerprint{}
	}
	sum := sha256.Sum256([]byte(body))
	return Fingerprint{Len: len(body), SHA256: hex.EncodeToString(sum[:])}
}

// RunError reports a job that decoded fine but failed to execute.
type RunError struct {
	JobID string
	Err   error
}

func (e *RunError) Error() string { return fmt.Sprintf("run job %s: %v", e.JobID, e.Err) }

func (e *RunError) Unwrap() error { return e.Err }

// Unrecoverable reports whether redelivering the message cannot help:
// the body is poison or the job it names no longer exists.
func Unrecoverable(err error) bool {
	return queue.Poison(err) || errors.Is(err, jobs.ErrNotFound)
}

// HandleMessage decodes body and executes the job it names. The returned
// message is populated as far as decoding got, for logging.
func HandleMessage(ctx context.Context, runner jobs.Runner, body string) (queue.Message, error) {
	if runner == nil {
		return queue.Message{}, errNoRunner
	}
	msg, err := queue.Decode([]byte(body))
	if err != nil {
		return msg, err
	}
	if err := runner.Execute(jobs.WithRequestID(ctx, msg.RequestID), msg.JobID); err != nil {
		return msg, &RunError{JobID: msg.JobID, Err: err}
	}
	return msg, nil
}
