package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/repository"
)

// HealthStore is the slice of the coordination store the health
// endpoint reads.
type HealthStore interface {
	repository.DomainSet
	repository.Queues
	repository.WorkerRegistry
}

type HealthHandler struct {
	store  HealthStore
	logger *slog.Logger
}

func NewHealthHandler(store HealthStore, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger.With("component", "health_handler")}
}

// GET /health
//
// Worker and backlog counts for the caller's domain. The path is auth
// exempt, so an anonymous or admin caller gets the totals across every
// domain.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	scope := scopeFrom(c)

	doms := []string{scope.Domain}
	if scope.Domain == "" || scope.Wildcard() {
		var err error
		doms, err = h.store.Domains(ctx)
		if err != nil {
			h.logger.Error("list domains", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
			return
		}
	}

	var workers, pending int64
	for _, dom := range doms {
		w, err := h.store.Count(ctx, dom)
		if err != nil {
			h.logger.Error("count workers", "domain", dom, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
			return
		}
		p, err := h.store.PendingLength(ctx, dom)
		if err != nil {
			h.logger.Error("pending length", "domain", dom, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
			return
		}
		workers += w
		pending += p
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"workers":      workers,
		"pending_jobs": pending,
	})
}
