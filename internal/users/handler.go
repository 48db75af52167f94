package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
)

// Handler serves the signed-in caller's stored account.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me/profile", h.getProfile)
}

func (h *Handler) getProfile(c *gin.Context) {
	u, err := h.svc.Get(c.Request.Context(), middleware.UserIDFromContext(c))
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "no profile for this identity", nil)
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to load profile", nil)
	default:
		respond.OK(c, u)
	}
}
