package server

import (
	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	id, _ := middleware.IdentityFromContext(c)
	response := gin.H{
		"userId": id.ID,
		"source": id.Source,
	}
	if id.Email != "" {
		response["email"] = id.Email
	}
	if !id.IssuedAt.IsZero() {
		response["issuedAt"] = id.IssuedAt
	}
	if !id.ExpiresAt.IsZero() {
		response["expiresAt"] = id.ExpiresAt
	}
	respond.OK(c, response)
}
