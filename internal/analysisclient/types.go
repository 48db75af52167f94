package analysisclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Request is one multipart analysis call.
type Request struct {
	FileName    string
	ContentType string
	File        []byte
	JobURL      string
	Anonymize   bool
	Credential  string
}

// JobDetails describes the posting the service scraped.
type JobDetails struct {
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
}

// Analysis is the fit assessment.
type Analysis struct {
	MatchScore      Score    `json:"match_score"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	ImprovementTips []string `json:"improvement_tips"`
	KeywordsFound   []string `json:"keywords_found"`
	KeywordsMissing []string `json:"keywords_missing"`
}

// Result is the decoded service reply. Raw keeps the body verbatim.
type Result struct {
	JobDetails JobDetails      `json:"job_details"`
	Analysis   Analysis        `json:"analysis"`
	Raw        json.RawMessage `json:"-"`
}

// Score accepts numbers or numeric strings; anything else decodes to 0.
type Score int

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*s = 0
			return nil
		}
		raw = strings.TrimSpace(strings.TrimSuffix(str, "%"))
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = Score(int(f))
	return nil
}
