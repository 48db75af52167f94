package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"jobfit-backend/internal/jobs"
	sharedauth "jobfit-backend/internal/shared/auth"
	"jobfit-backend/internal/shared/config"
)

func fakeAnalysisService(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/analysis/" || r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_details":{"title":"Backend Engineer","company_name":"Acme"},"analysis":{"match_score":82,"strengths":["Go"]}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, analysisURL string) config.Config {
	return config.Config{
		Env:                "dev",
		ObjectStoreType:    "local",
		LocalStoreDir:      t.TempDir(),
		SessionCookieName:  "session_id",
		SessionTTL:         time.Hour,
		AnalysisServiceURL: analysisURL,
		JobTimeout:         10 * time.Second,
		JobMaxConcurrency:  2,
		RateLimitMax:       4,
		RateLimitWindow:    24 * time.Hour,
		RateLimitReapEvery: time.Hour,
		PollRate:           100,
		PollBurst:          100,
	}
}

func createJob(t *testing.T, app *App, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("resume", "cv.pdf")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 resume"))
	_ = w.WriteField("jobUrl", "https://jobs.example.com/123")
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	return resp
}

func getJob(t *testing.T, app *App, token, id string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("get job: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestBuildInMemoryRunsJobToCompletion(t *testing.T) {
	var calls atomic.Int32
	srv := fakeAnalysisService(t, &calls)

	app, err := Build(context.Background(), testConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	if app.DB != nil || app.Redis != nil || app.Queue != nil {
		t.Fatalf("expected in-memory wiring")
	}
	if app.LocalDispatcher() == nil {
		t.Fatalf("expected local dispatcher")
	}

	token, err := app.Signer.Sign(sharedauth.Claims{UserID: "user-1", Email: "u@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	resp := createJob(t, app, token)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		JobID     string `json:"jobId"`
		Status    string `json:"status"`
		Remaining int    `json:"remaining"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.JobID == "" || created.Remaining != 3 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case id := <-app.LocalDispatcher().Done():
		if id != created.JobID {
			t.Fatalf("unexpected finished job %q", id)
		}
	case <-ctx.Done():
		t.Fatalf("job did not finish")
	}

	job := getJob(t, app, token, created.JobID)
	if job["status"] != string(jobs.StatusCompleted) || job["progress"] != float64(100) {
		t.Fatalf("unexpected job: %v", job)
	}
	if _, ok := job["analysis"]; !ok {
		t.Fatalf("expected analysis record on completed job")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", calls.Load())
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Env = "production"
	cfg.JWTSecret = "secret"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestBuildRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.RedisURL = "://nope"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected redis url error")
	}
}
