package jobs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"jobfit-backend/internal/analyses"
	"jobfit-backend/internal/ratelimit"
	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// AnalysisLookup finds the analysis record written for a completed job.
type AnalysisLookup interface {
	GetByJob(ctx context.Context, jobID, ownerID string) (analyses.Analysis, error)
}

// Handler wires HTTP handlers to the job service.
type Handler struct {
	Svc      *Service
	Analyses AnalysisLookup
	Now      func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, lookup AnalysisLookup) *Handler {
	return &Handler{Svc: svc, Analyses: lookup, Now: time.Now}
}

// RegisterRoutes attaches job routes to an authenticated router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.createJob)
	rg.GET("/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJob)
	rg.DELETE("/jobs/:id", h.cancelJob)
}

type createJobForm struct {
	JobURL       string `form:"jobUrl" json:"jobUrl" binding:"required,url"`
	ResumeRef    string `form:"resumeRef" json:"resumeRef"`
	AnonymizePII bool   `form:"anonymizePii" json:"anonymizePii"`
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) createJob(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	var form createJobForm
	if err := c.ShouldBind(&form); err != nil {
		h.bindError(c, err)
		return
	}

	ident, _ := middleware.IdentityFromContext(c)
	in := CreateInput{
		OwnerID:    ident.ID,
		OwnerEmail: ident.Email,
		ClientIP:   ratelimit.ClientIP(c.Request, c.ClientIP()),
		ResumeRef:  form.ResumeRef,
		JobURL:     form.JobURL,
		Anonymize:  form.AnonymizePII,
	}

	if fileHeader, err := c.FormFile("resume"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read resume", nil)
			return
		}
		defer file.Close()
		in.Resume = file
		in.FileName = fileHeader.Filename
		in.FileSize = fileHeader.Size
	}

	res, err := h.Svc.Create(h.requestContext(c), in)
	if err != nil {
		h.createError(c, err)
		return
	}

	c.Set(middleware.JobIDKey, res.Job.ID)
	c.Set(middleware.StatusTransitionKey, string(StatusPending)+"->"+string(res.Job.Status))
	respond.Accepted(c, gin.H{
		"jobId":     res.Job.ID,
		"status":    res.Job.Status,
		"remaining": res.Decision.Remaining,
		"resetTime": res.Decision.ResetTime.Format(time.RFC3339),
	})
}

func (h *Handler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &tooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodePayloadTooLarge,
			"request body exceeds "+strconv.FormatInt(tooLarge.Limit>>20, 10)+"MB", nil)
	case errors.As(err, &invalid):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "jobUrl must be a valid URL", []map[string]string{
			{"field": "jobUrl", "issue": invalid[0].Tag()},
		})
	default:
		respond.Error(c, http.StatusBadRequest, respond.CodeInvalidRequest, "malformed request body", nil)
	}
}

func (h *Handler) createError(c *gin.Context, err error) {
	var denied *ratelimit.DeniedError
	var invalid *ValidationError
	switch {
	case errors.As(err, &denied):
		retry := denied.RetryAfter(h.now())
		c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
		respond.Error(c, http.StatusTooManyRequests, respond.CodeRateLimited, "Rate limit exceeded. Please try again later.", gin.H{
			"resetTime": denied.ResetTime.Format(time.RFC3339),
			"remaining": 0,
			"limit":     denied.Limit,
		})
	case errors.As(err, &invalid):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, invalid.Message, []map[string]string{
			{"field": invalid.Field, "issue": invalid.Message},
		})
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to create analysis job", nil)
	}
}

func (h *Handler) listJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := h.Svc.List(h.requestContext(c), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to list jobs", nil)
		return
	}
	views := make([]View, 0, len(items))
	for _, j := range items {
		views = append(views, ToView(j))
	}
	respond.OK(c, gin.H{"jobs": views, "total": total})
}

type jobResponse struct {
	View
	Analysis *analyses.Analysis `json:"analysis,omitempty"`
}

func (h *Handler) getJob(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.JobIDKey, id)
	ctx := h.requestContext(c)
	userID := middleware.UserIDFromContext(c)

	job, err := h.Svc.Get(ctx, id, userID)
	if err != nil {
		h.lookupError(c, err)
		return
	}

	resp := jobResponse{View: ToView(job)}
	if job.Status == StatusCompleted && h.Analyses != nil {
		if a, err := h.Analyses.GetByJob(ctx, job.ID, userID); err == nil {
			resp.Analysis = &a
		}
	}
	respond.OK(c, resp)
}

func (h *Handler) cancelJob(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.JobIDKey, id)

	job, err := h.Svc.Cancel(h.requestContext(c), id, middleware.UserIDFromContext(c))
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, "active->"+string(job.Status))
	respond.OK(c, gin.H{
		"id":      job.ID,
		"status":  job.Status,
		"message": "Job cancelled successfully",
	})
}

func (h *Handler) lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "Job not found", nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, respond.CodeInvalidState, "Job cannot be cancelled in its current state", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to load job", nil)
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
