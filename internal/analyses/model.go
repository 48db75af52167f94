// Package analyses keeps the permanent record of each completed analysis,
// independent of the job that produced it.
package analyses

import (
	"strings"
	"time"

	"jobfit-backend/internal/analysisclient"
)

const (
	UnknownPosition = "Unknown Position"
	UnknownCompany  = "Unknown Company"
)

// Analysis is a stored analysis outcome.
type Analysis struct {
	ID              string    `json:"id"`
	UserID          string    `json:"-"`
	JobID           string    `json:"jobId"`
	JobTitle        string    `json:"jobTitle"`
	Company         string    `json:"companyName"`
	JobURL          string    `json:"jobPostingUrl"`
	FileName        string    `json:"fileName,omitempty"`
	MatchScore      int       `json:"matchScore"`
	Strengths       []string  `json:"strengths"`
	Weaknesses      []string  `json:"weaknesses"`
	ImprovementTips []string  `json:"improvementTips"`
	KeywordsFound   []string  `json:"keywordsFound"`
	KeywordsMissing []string  `json:"keywordsMissing"`
	WasAnonymized   bool      `json:"wasAnonymized"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RecordInput is what the executor hands over at the finalizing checkpoint.
type RecordInput struct {
	UserID     string
	JobID      string
	JobURL     string
	FileName   string
	Anonymized bool
	Result     analysisclient.Result
}

// FromResult maps a service result onto a record, filling missing titles.
func FromResult(id string, in RecordInput, now time.Time) Analysis {
	title := strings.TrimSpace(in.Result.JobDetails.Title)
	if title == "" {
		title = UnknownPosition
	}
	company := strings.TrimSpace(in.Result.JobDetails.CompanyName)
	if company == "" {
		company = UnknownCompany
	}
	a := in.Result.Analysis
	return Analysis{
		ID:              id,
		UserID:          in.UserID,
		JobID:           in.JobID,
		JobTitle:        title,
		Company:         company,
		JobURL:          in.JobURL,
		FileName:        in.FileName,
		MatchScore:      int(a.MatchScore),
		Strengths:       orEmpty(a.Strengths),
		Weaknesses:      orEmpty(a.Weaknesses),
		ImprovementTips: orEmpty(a.ImprovementTips),
		KeywordsFound:   orEmpty(a.KeywordsFound),
		KeywordsMissing: orEmpty(a.KeywordsMissing),
		WasAnonymized:   in.Anonymized,
		CreatedAt:       now.UTC(),
	}
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
