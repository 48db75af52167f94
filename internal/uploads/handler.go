package uploads

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
	"jobfit-backend/internal/shared/storage/object"
	"jobfit-backend/internal/shared/telemetry"
)

const (
	maxUploadBytes = 10 << 20
	presignExpires = 15 * time.Minute
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain": {},
}

// Presigner issues direct-upload URLs for object keys.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Handler serves résumé upload URLs. The returned resumeRef is accepted by
// POST /jobs in place of a multipart file.
type Handler struct {
	presign Presigner
}

func NewHandler(p Presigner) *Handler {
	return &Handler{presign: p}
}

type presignRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required,gt=0"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	ResumeRef        string `json:"resumeRef"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presignResume)
}

func (h *Handler) presignResume(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", nil)
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if _, ok := allowedContentTypes[contentType]; !ok {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "sizeBytes exceeds limit", gin.H{"maxBytes": maxUploadBytes})
		return
	}

	key, err := object.NewKey(middleware.UserIDFromContext(c), strings.TrimSpace(req.FileName))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid fileName", nil)
		return
	}

	uploadURL, err := h.presign.PresignUpload(c.Request.Context(), key, presignExpires)
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"err":         err.Error(),
			"key":         key,
			"contentType": contentType,
			"sizeBytes":   req.SizeBytes,
			"request_id":  middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to generate upload url", nil)
		return
	}

	respond.OK(c, presignResponse{
		UploadURL:        uploadURL,
		ResumeRef:        key,
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	})
}
