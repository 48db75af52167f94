// Package jobs runs résumé analysis as asynchronous jobs: creation and
// admission, detached execution with durable checkpoints, and status polling.
package jobs

import (
	"encoding/json"
	"time"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active lists the states a job may be cancelled from.
var Active = []Status{StatusPending, StatusProcessing}

// TotalSteps is the number of analysis steps reported to clients.
const TotalSteps = 3

// Step labels written at each checkpoint.
const (
	StepQueued     = "Queued"
	StepStarting   = "Starting analysis"
	StepPreparing  = "Preparing analysis request"
	StepProcessing = "Processing with analysis service"
	StepFinalizing = "Finalizing results"
	StepComplete   = "Analysis complete"
	StepFailed     = "Analysis failed"
	StepCancelled  = "Cancelled"

	CancelledMessage = "Cancelled by caller"
)

// Job is one asynchronous analysis request.
type Job struct {
	ID             string
	UserID         string
	OwnerEmail     string
	Status         Status
	Progress       int
	CurrentStep    string
	CompletedSteps int
	TotalSteps     int
	FileName       string
	FileSize       int64
	ResumeRef      string
	// ResumeOwned marks a blob saved by Create from an inline upload.
	ResumeOwned    bool
	JobURL         string
	Anonymize      bool
	Result         json.RawMessage
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// ProcessingTime is completedAt - startedAt in seconds, when both are set.
func (j Job) ProcessingTime() *float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	secs := j.CompletedAt.Sub(*j.StartedAt).Seconds()
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// Update carries the fields a transition writes. Nil pointers are left untouched.
type Update struct {
	Status         Status
	Progress       *int
	CurrentStep    *string
	CompletedSteps *int
	Result         json.RawMessage
	Error          *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Checkpoint is a progress write while processing.
type Checkpoint struct {
	Progress       int
	Step           string
	CompletedSteps int
}

func (u Update) apply(j *Job, now time.Time) {
	j.Status = u.Status
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.CurrentStep != nil {
		j.CurrentStep = *u.CurrentStep
	}
	if u.CompletedSteps != nil {
		j.CompletedSteps = *u.CompletedSteps
	}
	if u.Result != nil {
		j.Result = append(json.RawMessage(nil), u.Result...)
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		j.StartedAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		j.CompletedAt = &t
	}
	j.UpdatedAt = now
}

// View is the JSON projection returned to clients.
type View struct {
	ID             string          `json:"id"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	CurrentStep    string          `json:"currentStep"`
	CompletedSteps int             `json:"completedSteps"`
	TotalSteps     int             `json:"totalSteps"`
	FileName       string          `json:"fileName,omitempty"`
	JobURL         string          `json:"jobPostingUrl"`
	CreatedAt      time.Time       `json:"createdAt"`
	StartedAt      *time.Time      `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt"`
	ProcessingTime *float64        `json:"processingTime"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ToView projects a job. Result is only exposed once completed, error only once failed or cancelled.
func ToView(j Job) View {
	v := View{
		ID:             j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		CurrentStep:    j.CurrentStep,
		CompletedSteps: j.CompletedSteps,
		TotalSteps:     j.TotalSteps,
		FileName:       j.FileName,
		JobURL:         j.JobURL,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		ProcessingTime: j.ProcessingTime(),
	}
	switch j.Status {
	case StatusCompleted:
		v.Result = j.Result
	case StatusFailed, StatusCancelled:
		v.Error = j.Error
	}
	return v
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }
