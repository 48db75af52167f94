package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/shared/telemetry"
)

// Error codes shared by every handler.
const (
	CodeValidation      = "validation_error"
	CodeInvalidRequest  = "invalid_request"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeInvalidState    = "invalid_state"
	CodeRateLimited     = "rate_limited"
	CodePayloadTooLarge = "payload_too_large"
	CodeInternal        = "internal_error"
)

// Envelope is the JSON shape of every non-2xx response.
type Envelope struct {
	Error Problem `json:"error"`
}

// Problem carries the machine code, a human message and optional details.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error writes the envelope, logs it, and aborts the handler chain.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status": status,
		"code":   code,
		"route":  routeOf(c),
		"method": c.Request.Method,
	}
	for ctxKey, field := range map[string]string{
		"requestId": "request_id",
		"userId":    "user_id",
		"jobId":     "job_id",
	} {
		if v := c.GetString(ctxKey); v != "" {
			fields[field] = v
		}
	}

	if status >= http.StatusInternalServerError {
		fields["message"] = message
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, Envelope{Error: Problem{Code: code, Message: message, Details: details}})
}

// Internal is the generic 500 used when a failure must not leak detail.
func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "Unexpected server error", nil)
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
