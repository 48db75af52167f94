package jobs

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, user_id, owner_email, status, progress, current_step, completed_steps, total_steps,
	file_name, file_size, resume_key, resume_owned, job_posting_url, anonymize_pii, result, error,
	created_at, updated_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		j           Job
		status      string
		result      []byte
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&j.ID, &j.UserID, &j.OwnerEmail, &status, &j.Progress, &j.CurrentStep, &j.CompletedSteps, &j.TotalSteps,
		&j.FileName, &j.FileSize, &j.ResumeRef, &j.ResumeOwned, &j.JobURL, &j.Anonymize, &result, &errMsg,
		&j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt,
	); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	if len(result) > 0 {
		j.Result = result
	}
	j.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, j Job) error {
	const query = `
INSERT INTO jobs (
	id, user_id, owner_email, status, progress, current_step, completed_steps, total_steps,
	file_name, file_size, resume_key, resume_owned, job_posting_url, anonymize_pii, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`
	_, err := r.DB.ExecContext(ctx, query,
		j.ID, j.UserID, j.OwnerEmail, string(j.Status), j.Progress, j.CurrentStep, j.CompletedSteps, j.TotalSteps,
		j.FileName, j.FileSize, j.ResumeRef, j.ResumeOwned, j.JobURL, j.Anonymize, j.CreatedAt,
	)
	return err
}

// Get returns a job by id regardless of owner.
func (r *PGRepo) Get(ctx context.Context, id string) (Job, error) {
	j, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// GetForOwner returns a job only when ownerID owns it.
func (r *PGRepo) GetForOwner(ctx context.Context, id, ownerID string) (Job, error) {
	j, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListByOwner returns the owner's jobs newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Job, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE user_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

// Transition applies u only if the job is currently in one of from.
func (r *PGRepo) Transition(ctx context.Context, id string, from []Status, u Update) (Job, error) {
	if len(from) == 0 {
		return Job{}, ErrStaleState
	}
	var result any
	if u.Result != nil {
		result = string(u.Result)
	}
	args := []any{
		id, string(u.Status), nullInt(u.Progress), nullString(u.CurrentStep), nullInt(u.CompletedSteps),
		result, nullString(u.Error), nullTime(u.StartedAt), nullTime(u.CompletedAt), time.Now().UTC(),
	}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	query := `
UPDATE jobs SET
	status          = $2,
	progress        = COALESCE($3, progress),
	current_step    = COALESCE($4, current_step),
	completed_steps = COALESCE($5, completed_steps),
	result          = COALESCE($6::jsonb, result),
	error           = COALESCE($7, error),
	started_at      = COALESCE($8, started_at),
	completed_at    = COALESCE($9, completed_at),
	updated_at      = $10
WHERE id = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)
RETURNING ` + jobColumns

	j, err := scanJob(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return r.staleOrMissing(ctx, id)
	}
	return j, err
}

// Checkpoint advances progress only while processing and never backwards.
func (r *PGRepo) Checkpoint(ctx context.Context, id string, cp Checkpoint) (Job, error) {
	const query = `
UPDATE jobs SET progress = $2, current_step = $3, completed_steps = $4, updated_at = $5
WHERE id = $1 AND status = 'processing' AND progress <= $2
RETURNING ` + jobColumns
	j, err := scanJob(r.DB.QueryRowContext(ctx, query, id, cp.Progress, cp.Step, cp.CompletedSteps, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return r.staleOrMissing(ctx, id)
	}
	return j, err
}

func (r *PGRepo) staleOrMissing(ctx context.Context, id string) (Job, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return current, ErrStaleState
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

var _ Repo = (*PGRepo)(nil)
