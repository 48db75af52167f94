package analysisclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyzeSendsMultipartAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("job_posting_url") != "https://jobs.example/1" || r.FormValue("anonymize_pii") != "true" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "resume bytes" || hdr.Filename != "cv.pdf" {
				t.Errorf("unexpected file %q %q", hdr.Filename, data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_details":{"title":"Engineer","company_name":"Acme"},"analysis":{"match_score":"82","strengths":["go"]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	res, err := c.Analyze(context.Background(), Request{
		FileName:   "cv.pdf",
		File:       []byte("resume bytes"),
		JobURL:     "https://jobs.example/1",
		Anonymize:  true,
		Credential: "svc-token",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.JobDetails.Title != "Engineer" || res.JobDetails.CompanyName != "Acme" {
		t.Fatalf("unexpected details %+v", res.JobDetails)
	}
	if res.Analysis.MatchScore != 82 || len(res.Analysis.Strengths) != 1 {
		t.Fatalf("unexpected analysis %+v", res.Analysis)
	}
	if len(res.Raw) == 0 {
		t.Fatalf("expected raw body")
	}
}

func TestAnalyzeUpstreamErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "error field", status: 422, body: `{"error":"Could not scrape job posting"}`, want: "Could not scrape job posting"},
		{name: "detail field", status: 400, body: `{"detail":"Unsupported file type"}`, want: "Unsupported file type"},
		{name: "plain body", status: 502, body: `bad gateway`, want: "analysis service error: 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Analyze(context.Background(), Request{File: []byte("x")})
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstream.Status != tt.status || upstream.Detail != tt.want {
				t.Fatalf("got %d %q", upstream.Status, upstream.Detail)
			}
		})
	}
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, _ = c.Analyze(context.Background(), Request{})
	}
	_, err := c.Analyze(context.Background(), Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected breaker to short-circuit, server saw %d calls", calls)
	}
}

func TestScoreDecoding(t *testing.T) {
	tests := map[string]Score{`75`: 75, `"64"`: 64, `"90%"`: 90, `"n/a"`: 0, `null`: 0, `71.8`: 71}
	for in, want := range tests {
		var s Score
		if err := s.UnmarshalJSON([]byte(in)); err != nil || s != want {
			t.Fatalf("Score(%s) = %d, %v; want %d", in, s, err, want)
		}
	}
}
