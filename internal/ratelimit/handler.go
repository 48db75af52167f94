package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
)

// Handler exposes the caller's admission quota.
type Handler struct {
	Limiter *Limiter
}

func NewHandler(l *Limiter) *Handler { return &Handler{Limiter: l} }

// RegisterRoutes attaches GET /rate-limit. Callers need not be signed in.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rate-limit", h.status)
}

func (h *Handler) status(c *gin.Context) {
	key := KeyFor(middleware.UserIDFromContext(c), ClientIP(c.Request, c.ClientIP()))
	d, err := h.Limiter.Status(c.Request.Context(), key)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Unable to read rate limit", nil)
		return
	}
	respond.OK(c, gin.H{
		"allowed":   d.Allowed,
		"remaining": d.Remaining,
		"resetTime": d.ResetTime.Format(time.RFC3339),
		"limit":     d.Limit,
	})
}
