package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/usecase"
)

type workerUsecaser interface {
	List(ctx context.Context, scope usecase.Scope) ([]*domain.WorkerInfo, error)
	SetState(ctx context.Context, scope usecase.Scope, workerID, state string) error
}

type WorkerHandler struct {
	workers workerUsecaser
	logger  *slog.Logger
}

func NewWorkerHandler(workers workerUsecaser, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{workers: workers, logger: logger.With("component", "worker_handler")}
}

// GET /workers/
func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.workers.List(c.Request.Context(), scopeFrom(c))
	if err != nil {
		h.logger.Error("list workers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	views := make([]workerView, len(workers))
	for i, w := range workers {
		views[i] = viewWorker(w)
	}
	c.JSON(http.StatusOK, gin.H{"workers": views, "count": len(views)})
}

type setStateRequest struct {
	State string `json:"state" binding:"required"`
}

// POST /workers/:id/state
func (h *WorkerHandler) SetState(c *gin.Context) {
	var req setStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workerID := c.Param("id")
	err := h.workers.SetState(c.Request.Context(), scopeFrom(c), workerID, req.State)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"worker_id": workerID, "state": req.State})
	case errors.Is(err, domain.ErrStateInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrWorkerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errWorkerNotFound})
	default:
		h.logger.Error("set worker state", "worker_id", workerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
