package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/usecase"
)

const defaultHistoryLimit = 50

// jobUsecaser is the subset of JobUsecase the handler needs. Defined
// here (point of use) so tests can inject a fake.
type jobUsecaser interface {
	Create(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	CreateAdhoc(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	Update(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	RunNow(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error)
	Get(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error)
	List(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobDefinition, error)
	Runs(ctx context.Context, scope usecase.Scope, jobID string, limit int) ([]*domain.JobRun, error)
	History(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobRun, error)
	QueueOverview(ctx context.Context, scope usecase.Scope) (*usecase.QueueOverview, error)
}

type JobHandler struct {
	jobs   jobUsecaser
	logger *slog.Logger
}

func NewJobHandler(jobs jobUsecaser, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With("component", "job_handler")}
}

// jobRequest is the submit/update/validate body. Defaults and field
// checks live in the usecase, so nothing here is marked required; a
// garbled body still fails the bind.
type jobRequest struct {
	Name           string                    `json:"name"`
	User           string                    `json:"user"`
	Queue          string                    `json:"queue"`
	Priority       int                       `json:"priority"`
	Retries        int                       `json:"retries"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
	NotifyEmail    string                    `json:"notify_email"`
	Affinity       domain.Affinity           `json:"affinity"`
	Executor       domain.ExecutorConfig     `json:"executor"`
	Source         *domain.SourceConfig      `json:"source"`
	Schedule       domain.ScheduleConfig     `json:"schedule"`
	Completion     domain.CompletionCriteria `json:"completion"`
}

func (r jobRequest) definition() domain.JobDefinition {
	return domain.JobDefinition{
		Name:           r.Name,
		User:           r.User,
		Queue:          r.Queue,
		Priority:       r.Priority,
		Retries:        r.Retries,
		TimeoutSeconds: r.TimeoutSeconds,
		NotifyEmail:    r.NotifyEmail,
		Affinity:       r.Affinity,
		Executor:       r.Executor,
		Source:         r.Source,
		Schedule:       r.Schedule,
		Completion:     r.Completion,
	}
}

// POST /jobs/
func (h *JobHandler) Create(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), scopeFrom(c), req.definition())
	if err != nil {
		h.writeJobError(c, "create job", err)
		return
	}
	c.JSON(http.StatusCreated, viewJob(job))
}

// POST /jobs/adhoc
func (h *JobHandler) Adhoc(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.CreateAdhoc(c.Request.Context(), scopeFrom(c), req.definition())
	if err != nil {
		h.writeJobError(c, "create adhoc job", err)
		return
	}
	c.JSON(http.StatusCreated, viewJob(job))
}

// PUT /jobs/:id
func (h *JobHandler) Update(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def := req.definition()
	def.ID = c.Param("id")

	job, err := h.jobs.Update(c.Request.Context(), scopeFrom(c), def)
	if err != nil {
		h.writeJobError(c, "update job", err)
		return
	}
	c.JSON(http.StatusOK, viewJob(job))
}

// POST /jobs/validate
//
// Dry run: the response always carries valid plus the field errors, and
// the normalized definition when it passed.
func (h *JobHandler) Validate(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	normalized, verrs := usecase.ValidateDefinition(c.Request.Context(), req.definition(), time.Now().UTC())
	if verrs != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "errors": verrs})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"errors":     []domain.FieldError{},
		"definition": viewJob(&normalized),
	})
}

// POST /jobs/:id/run
func (h *JobHandler) RunNow(c *gin.Context) {
	job, err := h.jobs.RunNow(c.Request.Context(), scopeFrom(c), c.Param("id"))
	if err != nil {
		h.writeJobError(c, "manual run", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": true, "job_id": job.ID, "priority": job.Priority})
}

// GET /jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), scopeFrom(c), c.Param("id"))
	if err != nil {
		h.writeJobError(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, viewJob(job))
}

// GET /jobs/
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobs.List(c.Request.Context(), scopeFrom(c), limitParam(c, 0))
	if err != nil {
		h.writeJobError(c, "list jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": viewJobs(jobs), "count": len(jobs)})
}

// GET /jobs/:id/runs
func (h *JobHandler) Runs(c *gin.Context) {
	runs, err := h.jobs.Runs(c.Request.Context(), scopeFrom(c), c.Param("id"), limitParam(c, defaultHistoryLimit))
	if err != nil {
		h.writeJobError(c, "list job runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": viewRunTails(runs), "count": len(runs)})
}

// GET /history
func (h *JobHandler) History(c *gin.Context) {
	runs, err := h.jobs.History(c.Request.Context(), scopeFrom(c), limitParam(c, defaultHistoryLimit))
	if err != nil {
		h.writeJobError(c, "run history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": viewRunTails(runs), "count": len(runs)})
}

// GET /queue/overview
func (h *JobHandler) QueueOverview(c *gin.Context) {
	overview, err := h.jobs.QueueOverview(c.Request.Context(), scopeFrom(c))
	if err != nil {
		h.writeJobError(c, "queue overview", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":   overview.Pending,
		"schedules": viewJobs(overview.Schedules),
	})
}

func (h *JobHandler) writeJobError(c *gin.Context, op string, err error) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job definition", "errors": verrs})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
	case errors.Is(err, domain.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errRunNotFound})
	default:
		h.logger.Error(op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

func limitParam(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
