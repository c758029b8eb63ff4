package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/repository"
	"github.com/hydrajobs/hydra/internal/usecase"
)

// historyReplay is how many buffered chunks a late stream subscriber
// gets before going live.
const historyReplay = 200

type runUsecaser interface {
	GetRun(ctx context.Context, scope usecase.Scope, runID string) (*domain.JobRun, error)
}

type RunHandler struct {
	runs   runUsecaser
	logs   repository.LogStream
	logger *slog.Logger
}

func NewRunHandler(runs runUsecaser, logs repository.LogStream, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logs: logs, logger: logger.With("component", "run_handler")}
}

// GET /runs/:id
func (h *RunHandler) GetByID(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), scopeFrom(c), c.Param("id"))
	if err != nil {
		h.writeRunError(c, "get run", err)
		return
	}
	c.JSON(http.StatusOK, viewRun(run))
}

// GET /runs/:id/stream
//
// SSE of log_chunk events: buffered history first, then live pub/sub
// until the client disconnects. Subscribing before the replay closes
// the gap between the two; a chunk published mid-replay may arrive
// twice, never not at all.
func (h *RunHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	run, err := h.runs.GetRun(ctx, scopeFrom(c), c.Param("id"))
	if err != nil {
		h.writeRunError(c, "get run for stream", err)
		return
	}

	live, cancel, err := h.logs.Subscribe(ctx, run.Domain, run.ID)
	if err != nil {
		h.logger.Error("subscribe log stream", "run_id", run.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	defer cancel()

	history, err := h.logs.History(ctx, run.Domain, run.ID, historyReplay)
	if err != nil {
		h.logger.Error("log history", "run_id", run.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	sseHeaders(c)
	for _, raw := range history {
		c.SSEvent("log_chunk", raw)
	}
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-live:
			if !ok {
				return
			}
			c.SSEvent("log_chunk", raw)
			c.Writer.Flush()
		}
	}
}

func (h *RunHandler) writeRunError(c *gin.Context, op string, err error) {
	if errors.Is(err, domain.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": errRunNotFound})
		return
	}
	h.logger.Error(op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}
