package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `id, user_id, job_id, job_title, company_name, job_posting_url, file_name,
	match_score, was_anonymized, result, created_at`

// details is the JSONB payload for list-valued fields.
type details struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	ImprovementTips []string `json:"improvement_tips"`
	KeywordsFound   []string `json:"keywords_found"`
	KeywordsMissing []string `json:"keywords_missing"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var (
		a   Analysis
		raw []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.JobID, &a.JobTitle, &a.Company, &a.JobURL, &a.FileName,
		&a.MatchScore, &a.WasAnonymized, &raw, &a.CreatedAt); err != nil {
		return Analysis{}, err
	}
	var d details
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis result: %w", err)
		}
	}
	a.Strengths = orEmpty(d.Strengths)
	a.Weaknesses = orEmpty(d.Weaknesses)
	a.ImprovementTips = orEmpty(d.ImprovementTips)
	a.KeywordsFound = orEmpty(d.KeywordsFound)
	a.KeywordsMissing = orEmpty(d.KeywordsMissing)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// Create inserts the analysis; a second record for the same job returns the first.
func (r *PGRepo) Create(ctx context.Context, a Analysis) (Analysis, error) {
	payload, err := json.Marshal(details{
		Strengths:       a.Strengths,
		Weaknesses:      a.Weaknesses,
		ImprovementTips: a.ImprovementTips,
		KeywordsFound:   a.KeywordsFound,
		KeywordsMissing: a.KeywordsMissing,
	})
	if err != nil {
		return Analysis{}, err
	}
	const query = `
INSERT INTO analyses (id, user_id, job_id, job_title, company_name, job_posting_url, file_name,
	match_score, was_anonymized, result, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
ON CONFLICT (job_id) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, query, a.ID, a.UserID, a.JobID, a.JobTitle, a.Company, a.JobURL, a.FileName,
		a.MatchScore, a.WasAnonymized, string(payload), a.CreatedAt)
	if err != nil {
		return Analysis{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.GetByJob(ctx, a.JobID, a.UserID)
	}
	return a, nil
}

func (r *PGRepo) GetForOwner(ctx context.Context, id, ownerID string) (Analysis, error) {
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = $1 AND user_id = $2`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

func (r *PGRepo) GetByJob(ctx context.Context, jobID, ownerID string) (Analysis, error) {
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE job_id = $1 AND user_id = $2`, jobID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// DeleteOwned verifies ownership of every id and deletes them in one transaction.
func (r *PGRepo) DeleteOwned(ctx context.Context, ownerID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{ownerID}
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	in := strings.Join(placeholders, ", ")

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var owned int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analyses WHERE user_id = $1 AND id IN (`+in+`)`, args...).Scan(&owned); err != nil {
		return 0, err
	}
	if owned != len(ids) {
		return 0, ErrNotFound
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE user_id = $1 AND id IN (`+in+`)`, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ Repo = (*PGRepo)(nil)
