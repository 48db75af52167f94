package analyses

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreateInsertsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	a := Analysis{
		ID:         "analysis-1",
		UserID:     "user-1",
		JobID:      "job-1",
		JobTitle:   "Engineer",
		Company:    "Acme",
		JobURL:     "https://jobs.example/1",
		MatchScore: 80,
		Strengths:  []string{"go"},
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO analyses").
		WithArgs(a.ID, a.UserID, a.JobID, a.JobTitle, a.Company, a.JobURL, a.FileName,
			a.MatchScore, a.WasAnonymized, sqlmock.AnyArg(), a.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("unexpected id %s", got.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteOwnedRejectsForeignIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM analyses WHERE user_id = $1 AND id IN ($2, $3)")).
		WithArgs("user-1", "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err = (&PGRepo{DB: db}).DeleteOwned(context.Background(), "user-1", []string{"a", "b"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetForOwnerDecodesLists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "job_id", "job_title", "company_name", "job_posting_url", "file_name",
		"match_score", "was_anonymized", "result", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("a1", "u").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a1", "u", "j1", "SRE", "Acme", "", "", 70, true,
			[]byte(`{"strengths":["k8s"],"keywords_missing":["rust"]}`), created))

	a, err := (&PGRepo{DB: db}).GetForOwner(context.Background(), "a1", "u")
	if err != nil {
		t.Fatalf("GetForOwner: %v", err)
	}
	if len(a.Strengths) != 1 || a.KeywordsMissing[0] != "rust" || a.Weaknesses == nil || !a.WasAnonymized {
		t.Fatalf("unexpected analysis %+v", a)
	}
}
