package workflows

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/pipeline"
	"resume-pipeline/internal/runs"
	"resume-pipeline/internal/shared/server/middleware"
	"resume-pipeline/internal/shared/server/respond"
)

// CatalogInspector reports the state of the reference catalog.
type CatalogInspector interface {
	Diagnostics() catalog.Diagnostics
}

// Handler exposes the workflow service over HTTP.
type Handler struct {
	Svc     *Service
	Catalog CatalogInspector
	// SubmitMiddleware runs before both submission routes.
	SubmitMiddleware []gin.HandlerFunc
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, cat CatalogInspector, submit ...gin.HandlerFunc) *Handler {
	return &Handler{Svc: svc, Catalog: cat, SubmitMiddleware: submit}
}

// RegisterRoutes attaches the workflow routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.root)

	wf := r.Group("/workflow")
	wf.POST("/run", h.submitChain(h.run)...)
	wf.POST("/run/sync", h.submitChain(h.runSync)...)
	wf.GET("/status/:id", h.status)
	wf.GET("/active", h.active)
	wf.GET("/result/:id", h.result)

	r.GET("/api/v1/catalog", h.catalog)
}

func (h *Handler) submitChain(last gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(h.SubmitMiddleware)+1)
	chain = append(chain, h.SubmitMiddleware...)
	return append(chain, last)
}

func (h *Handler) root(c *gin.Context) {
	respond.OK(c, gin.H{
		"message": "CV analysis pipeline API",
		"endpoints": gin.H{
			"workflow_run":      "/workflow/run",
			"workflow_run_sync": "/workflow/run/sync",
			"workflow_status":   "/workflow/status/{run_id}",
			"workflow_result":   "/workflow/result/{run_id}",
			"active_workflows":  "/workflow/active",
			"catalog":           "/api/v1/catalog",
			"health":            "/api/v1/health",
			"readiness":         "/api/v1/health/ready",
			"metrics":           "/metrics",
		},
	})
}

// readSubmission parses the multipart form. It writes the error response
// itself and reports false on failure.
func (h *Handler) readSubmission(c *gin.Context) (Submission, bool) {
	if h.Svc.MaxUploadBytes > 0 {
		// Leave room for the other form fields.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.MaxUploadBytes+1<<20)
	}

	fileHeader, err := c.FormFile("pdf_file")
	if err != nil {
		fileHeader, err = c.FormFile("file")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", ErrTooLarge.Error(), nil)
			return Submission{}, false
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "pdf_file is required", nil)
		return Submission{}, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return Submission{}, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return Submission{}, false
	}

	name := c.PostForm("name")
	if name == "" {
		name = c.PostForm("workflow_name")
	}
	return Submission{
		Name:           name,
		Filename:       fileHeader.Filename,
		ContentType:    fileHeader.Header.Get("Content-Type"),
		Content:        content,
		AdditionalData: c.PostForm("additional_data"),
	}, true
}

func (h *Handler) submitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", err.Error(), nil)
	case errors.Is(err, ErrShuttingDown):
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "service is shutting down", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start run", nil)
	}
}

func (h *Handler) run(c *gin.Context) {
	sub, ok := h.readSubmission(c)
	if !ok {
		return
	}
	run, err := h.Svc.Launch(c.Request.Context(), sub)
	if err != nil {
		h.submitError(c, err)
		return
	}
	c.Set(middleware.RunIDKey, run.ID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"status": "Workflow launched",
		"name":   run.Name,
		"run_id": run.ID,
	})
}

type syncResponse struct {
	pipeline.Record
	RunInfo RunInfo `json:"run_info"`
}

type syncFault struct {
	Error  string      `json:"error"`
	RunID  string      `json:"run_id"`
	Name   string      `json:"name"`
	Status runs.Status `json:"status"`
}

func (h *Handler) runSync(c *gin.Context) {
	sub, ok := h.readSubmission(c)
	if !ok {
		return
	}
	res, err := h.Svc.RunSync(c.Request.Context(), sub)
	if res.Info.RunID == "" {
		h.submitError(c, err)
		return
	}
	c.Set(middleware.RunIDKey, res.Info.RunID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, syncFault{
			Error:  err.Error(),
			RunID:  res.Info.RunID,
			Name:   res.Info.Name,
			Status: res.Info.Status,
		})
		return
	}
	respond.OK(c, syncResponse{Record: res.Record, RunInfo: res.Info})
}

func (h *Handler) status(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.RunIDKey, id)
	view, err := h.Svc.Status(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, id, err)
		return
	}
	respond.OK(c, view)
}

func (h *Handler) active(c *gin.Context) {
	list, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list runs", nil)
		return
	}
	respond.OK(c, list)
}

func (h *Handler) result(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.RunIDKey, id)
	body, err := h.Svc.Result(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, id, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) lookupError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, runs.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "run not found: "+id, nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "not_ready", err.Error(), nil)
	case errors.Is(err, ErrResultUnavailable):
		respond.Error(c, http.StatusNotFound, "result_unavailable", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch run", nil)
	}
}

func (h *Handler) catalog(c *gin.Context) {
	if h.Catalog == nil {
		respond.Error(c, http.StatusNotFound, "not_configured", "reference catalog is not configured", nil)
		return
	}
	respond.OK(c, h.Catalog.Diagnostics())
}
