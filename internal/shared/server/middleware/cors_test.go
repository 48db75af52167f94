package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

const uiOrigin = "http://localhost:5173"

func corsRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(allowed))
	router.GET("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.DELETE("/api/v1/jobs/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return router
}

func doCORS(router *gin.Engine, method, path, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCORSPreflightFromListedOrigin(t *testing.T) {
	resp := doCORS(corsRouter(uiOrigin+"/"), http.MethodOptions, "/api/v1/jobs/123", uiOrigin)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	h := resp.Header()
	if h.Get("Access-Control-Allow-Origin") != uiOrigin || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("unexpected origin headers: %v", h)
	}
	if h.Get("Access-Control-Allow-Methods") != corsMethods || h.Get("Access-Control-Allow-Headers") == "" {
		t.Fatalf("expected preflight method and header lists, got %v", h)
	}
	if h.Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("expected Max-Age 600, got %q", h.Get("Access-Control-Max-Age"))
	}
}

func TestCORSSimpleRequestExposesHeaders(t *testing.T) {
	resp := doCORS(corsRouter(uiOrigin), http.MethodDelete, "/api/v1/jobs/123", uiOrigin)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Expose-Headers"); got != corsExpose {
		t.Fatalf("unexpected Expose-Headers %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("method list belongs to preflights only, got %q", got)
	}
	if got := resp.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary Origin, got %q", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	router := corsRouter(uiOrigin)

	resp := doCORS(router, http.MethodGet, "/api/v1/jobs", "https://evil.example")
	if resp.Code != http.StatusOK {
		t.Fatalf("simple request should still reach the handler, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no Allow-Origin, got %q", got)
	}

	resp = doCORS(router, http.MethodOptions, "/api/v1/jobs", "https://evil.example")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 preflight, got %d", resp.Code)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	resp := doCORS(corsRouter("*"), http.MethodGet, "/api/v1/jobs", "https://any.example")

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("wildcard must not allow credentials, got %q", got)
	}
}

func TestCORSOptionsWithoutOrigin(t *testing.T) {
	resp := doCORS(corsRouter(uiOrigin), http.MethodOptions, "/api/v1/jobs", "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}
