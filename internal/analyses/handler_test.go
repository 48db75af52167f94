package analyses

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHandlerHistoryAndGet(t *testing.T) {
	repo := NewMemoryRepo()
	_, _ = repo.Create(context.Background(), Analysis{ID: "a1", JobID: "j1", UserID: "u", JobTitle: "SRE", CreatedAt: time.Now()})
	r := newTestRouter(&Service{Repo: repo}, "u")

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list struct {
		Analyses []Analysis `json:"analyses"`
		Total    int        `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Analyses[0].JobTitle != "SRE" {
		t.Fatalf("unexpected list %+v", list)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestHandlerBulkDeleteValidation(t *testing.T) {
	r := newTestRouter(&Service{Repo: NewMemoryRepo()}, "u")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/bulk-delete", strings.NewReader(`{"analysisIds":[]}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyses/bulk-delete", strings.NewReader(`{"analysisIds":["nope"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
