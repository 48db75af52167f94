package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/identity"
	"jobfit-backend/internal/services/health"
	"jobfit-backend/internal/shared/config"
	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to a group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps holds the handlers mounted by NewRouter. Nil registrars are skipped.
type RouterDeps struct {
	Config   config.Config
	Resolver identity.Resolver

	// Public routes work without an identity; Protected routes require one.
	Public    []RouteRegistrar
	Protected []RouteRegistrar

	PollLimiter *middleware.RateLimiter
	Health      *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsDevLike() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if len(deps.Config.TrustedProxies) > 0 {
		_ = r.SetTrustedProxies(deps.Config.TrustedProxies)
	}

	cookieName := deps.Config.SessionCookieName
	if cookieName == "" {
		cookieName = "session_id"
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Identify(deps.Resolver, cookieName),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	for _, reg := range deps.Public {
		if reg != nil {
			reg.RegisterRoutes(api)
		}
	}

	protected := api.Group("",
		middleware.RequireIdentity(),
		middleware.RateLimit(pollingLimits(deps.Config, deps.PollLimiter)),
	)
	registerMeRoutes(protected)
	for _, reg := range deps.Protected {
		if reg != nil {
			reg.RegisterRoutes(protected)
		}
	}

	return r
}

// pollingLimits throttles GET /jobs/:id only; other routes have no rule.
func pollingLimits(cfg config.Config, limiter *middleware.RateLimiter) middleware.RateLimitConfig {
	rate, burst := cfg.PollRate, cfg.PollBurst
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			middleware.PollingGroup: {Rate: rate, Burst: burst},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet && strings.HasPrefix(c.FullPath(), "/api/v1/jobs/:id") {
				return middleware.PollingGroup
			}
			return ""
		},
		Limiter: limiter,
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
