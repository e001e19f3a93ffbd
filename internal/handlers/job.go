package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"shortcast/internal/artifact"
	"shortcast/internal/media"
	"shortcast/internal/models"
	"shortcast/internal/storage"
)

// JobHandler serves the job API.
type JobHandler struct {
	jobs  *storage.JobRepository
	store *artifact.Store
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs *storage.JobRepository, store *artifact.Store) *JobHandler {
	return &JobHandler{jobs: jobs, store: store}
}

type createJobRequest struct {
	VideoKey      string   `json:"video_key"`
	TranscriptKey string   `json:"transcript_key"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Voice         string   `json:"voice"`
	Tags          []string `json:"tags"`
}

// Create queues a new job.
// POST /api/jobs
func (h *JobHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
	}

	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}
	if req.Voice == "" {
		req.Voice = "alloy"
	}
	if !media.IsSupportedVoice(req.Voice) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported voice: " + req.Voice})
	}
	if msg := h.checkInput(c, owner, req.VideoKey, models.KindVideo); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}
	if msg := h.checkInput(c, owner, req.TranscriptKey, models.KindTranscript); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	job := &models.Job{
		Owner:         owner,
		Title:         req.Title,
		Description:   req.Description,
		Voice:         req.Voice,
		Tags:          req.Tags,
		VideoKey:      req.VideoKey,
		TranscriptKey: req.TranscriptKey,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, job)
}

// checkInput validates one input artifact reference. Returns an error
// message, or empty when the reference is usable.
func (h *JobHandler) checkInput(c echo.Context, owner, key string, kind models.ContentKind) string {
	if key == "" {
		return string(kind) + " artifact key is required"
	}
	a, err := h.store.Stat(c.Request().Context(), key)
	if err == models.ErrNotFound {
		return string(kind) + " artifact not found: " + key
	}
	if err != nil {
		return "artifact store unavailable"
	}
	if a.Owner != owner {
		// Foreign keys look absent, not forbidden.
		return string(kind) + " artifact not found: " + key
	}
	if a.Kind != kind {
		return key + " is not a " + string(kind) + " artifact"
	}
	return ""
}

// Get returns the full job record.
// GET /api/jobs/:id
func (h *JobHandler) Get(c echo.Context) error {
	job, ok := h.ownJob(c)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, job)
}

type jobStatusResponse struct {
	ID                string           `json:"id"`
	Stage             models.Stage     `json:"stage"`
	Progress          int              `json:"progress"`
	CurrentStep       string           `json:"current_step"`
	Error             *models.JobError `json:"error,omitempty"`
	PublishedURL      string           `json:"published_url,omitempty"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
	CompletedAt       string           `json:"completed_at,omitempty"`
	ProcessingSeconds int              `json:"processing_time_seconds,omitempty"`
}

// Status returns the read-only progress view. It only ever reflects the last
// committed transition.
// GET /api/jobs/:id/status
func (h *JobHandler) Status(c echo.Context) error {
	job, ok := h.ownJob(c)
	if !ok {
		return nil
	}

	resp := jobStatusResponse{
		ID:                job.ID,
		Stage:             job.Stage,
		Progress:          job.Progress,
		CurrentStep:       job.Stage.Step(),
		Error:             job.Error,
		PublishedURL:      job.PublishedURL,
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         job.UpdatedAt.Format(time.RFC3339),
		ProcessingSeconds: job.ProcessingSeconds(),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, resp)
}

type jobListResponse struct {
	Jobs       []models.Job `json:"jobs"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPages int          `json:"total_pages"`
}

// List returns one page of the caller's jobs.
// GET /api/jobs?page=&page_size=&stage=&sort=
func (h *JobHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
	}

	opts := storage.ListOptions{
		Owner:    owner,
		Stage:    models.Stage(c.QueryParam("stage")),
		Page:     1,
		PageSize: 20,
		Sort:     c.QueryParam("sort"),
	}
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		opts.Page = p
	}
	if ps, err := strconv.Atoi(c.QueryParam("page_size")); err == nil {
		opts.PageSize = ps
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 100 {
		opts.PageSize = 20
	}

	jobs, total, err := h.jobs.List(ctx, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	return c.JSON(http.StatusOK, jobListResponse{
		Jobs:       jobs,
		Total:      total,
		Page:       opts.Page,
		PerPage:    opts.PageSize,
		TotalPages: (total + opts.PageSize - 1) / opts.PageSize,
	})
}

// Cancel requests cancellation of a running job.
// POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
	}

	job, err := h.jobs.RequestCancel(ctx, c.Param("id"), owner)
	switch err {
	case nil:
		return c.JSON(http.StatusAccepted, job)
	case models.ErrNotFound:
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	case models.ErrJobAlreadyTerminal:
		return c.JSON(http.StatusConflict, map[string]string{"error": "job already finished"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// ownJob loads the job in the caller's ownership scope, writing the error
// response itself when that fails.
func (h *JobHandler) ownJob(c echo.Context) (*models.Job, bool) {
	owner := ownerID(c)
	if owner == "" {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
		return nil, false
	}

	job, err := h.jobs.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if job == nil || job.Owner != owner {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		return nil, false
	}
	return job, true
}
