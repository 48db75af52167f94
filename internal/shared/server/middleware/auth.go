package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/identity"
	"jobfit-backend/internal/shared/server/respond"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	userIDKey   = "userId"
	identityKey = "identity"
	authErrKey  = "identityError"
)

// Identify resolves the caller from the bearer header or session cookie.
// It never aborts; RequireIdentity enforces the result.
func Identify(resolver identity.Resolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		creds := identity.CredentialsFromRequest(c.Request, cookieName)
		if len(creds) == 0 {
			c.Next()
			return
		}
		id, err := identity.Authenticate(c.Request.Context(), resolver, creds)
		switch {
		case err == nil:
			c.Set(identityKey, id)
			c.Set(userIDKey, id.ID)
		case errors.Is(err, identity.ErrUnauthenticated):
		default:
			telemetry.Warn("identity.resolve_failed", map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      err.Error(),
			})
			c.Set(authErrKey, err)
		}
		c.Next()
	}
}

// RequireIdentity rejects requests Identify could not bind to a caller.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if _, ok := IdentityFromContext(c); ok {
			c.Next()
			return
		}
		if _, failed := c.Get(authErrKey); failed {
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Unable to verify identity", nil)
			return
		}
		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "Authentication required", nil)
	}
}

// IdentityFromContext returns the identity bound by Identify.
func IdentityFromContext(c *gin.Context) (identity.Identity, bool) {
	if c == nil {
		return identity.Identity{}, false
	}
	val, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := val.(identity.Identity)
	return id, ok && id.ID != ""
}

// UserIDFromContext fetches the caller's user ID, or "".
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
