package jobs

import (
	"context"

	"jobfit-backend/internal/shared/telemetry"
)

func logTransition(ctx context.Context, j Job, from Status) {
	fields := map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"user_id":           j.UserID,
		"job_id":            j.ID,
		"status":            j.Status,
		"progress":          j.Progress,
		"status_transition": string(from) + "->" + string(j.Status),
	}
	if pt := j.ProcessingTime(); pt != nil {
		fields["duration_ms"] = *pt * 1000
	}
	if j.Error != "" {
		fields["error"] = j.Error
	}
	telemetry.Info("job.status", fields)
}

func logStale(ctx context.Context, jobID, attempted string, current Job) {
	telemetry.Warn("job.stale_write", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     jobID,
		"attempted":  attempted,
		"status":     current.Status,
	})
}
