package server

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/identity"
	"jobfit-backend/internal/services/health"
	"jobfit-backend/internal/shared/config"
	"jobfit-backend/internal/shared/server/middleware"
)

type fixedResolver struct{ id identity.Identity }

func (f fixedResolver) Resolve(_ context.Context, creds []identity.Credential) (identity.Identity, bool, error) {
	for _, c := range creds {
		if c.Kind == identity.KindBearer && c.Value == "good" {
			return f.id, true, nil
		}
	}
	return identity.Identity{}, false, nil
}

type pollRoutes struct{}

func (pollRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/jobs/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })
	rg.GET("/jobs", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
}

func newTestRouter() *gin.Engine {
	cfg := config.Config{Env: "test", PollRate: 0.001, PollBurst: 2, CORSAllowOrigin: []string{"http://localhost:3000"}}
	return NewRouter(RouterDeps{
		Config: cfg,
		Resolver: fixedResolver{id: identity.Identity{
			ID: "user-1", Email: "u@example.com", Source: identity.KindBearer,
			ExpiresAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		}},
		Protected:   []RouteRegistrar{pollRoutes{}},
		PollLimiter: middleware.NewRateLimiter(nil),
	})
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter()
	resp := do(r, http.MethodGet, "/api/v1/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestHealthReportsUnavailableDependency(t *testing.T) {
	r := NewRouter(RouterDeps{
		Config:   config.Config{Env: "test"},
		Resolver: fixedResolver{},
		Health: health.NewService(map[string]health.Checker{
			"db": health.CheckFunc(func(context.Context) error { return errors.New("down") }),
		}),
	})
	resp := do(r, http.MethodGet, "/api/v1/health", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	var body health.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OK || body.Checks["db"] != "down" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMeReturnsResolvedIdentity(t *testing.T) {
	r := newTestRouter()
	if resp := do(r, http.MethodGet, "/api/v1/me", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.Code)
	}

	resp := do(r, http.MethodGet, "/api/v1/me", "good")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "user-1" || body["email"] != "u@example.com" || body["source"] != "bearer" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["expiresAt"]; !ok {
		t.Fatalf("missing expiresAt")
	}
}

func TestPollingRouteIsThrottled(t *testing.T) {
	r := newTestRouter()
	for i := 0; i < 2; i++ {
		if resp := do(r, http.MethodGet, "/api/v1/jobs/j1", "good"); resp.Code != http.StatusOK {
			t.Fatalf("poll %d: expected 200, got %d", i, resp.Code)
		}
	}
	resp := do(r, http.MethodGet, "/api/v1/jobs/j1", "good")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	// listing is not in the polling group
	for i := 0; i < 5; i++ {
		if resp := do(r, http.MethodGet, "/api/v1/jobs", "good"); resp.Code != http.StatusOK {
			t.Fatalf("list %d: expected 200, got %d", i, resp.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter()
	if resp := do(r, http.MethodGet, "/metrics", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
