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

type adminUsecaser interface {
	ListDomains(ctx context.Context) ([]usecase.DomainSummary, error)
	CreateDomain(ctx context.Context, name, displayName, description string) (*domain.Domain, string, error)
	UpdateDomain(ctx context.Context, name, displayName, description string) (*domain.Domain, error)
	RotateToken(ctx context.Context, name string) (string, error)
	DeleteDomain(ctx context.Context, name string) error
}

type AdminHandler struct {
	admin  adminUsecaser
	logger *slog.Logger
}

func NewAdminHandler(admin adminUsecaser, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger.With("component", "admin_handler")}
}

type domainSummaryView struct {
	domainView
	Jobs    int64 `json:"jobs"`
	Runs    int64 `json:"runs"`
	Workers int64 `json:"workers"`
}

// GET /admin/domains
func (h *AdminHandler) List(c *gin.Context) {
	summaries, err := h.admin.ListDomains(c.Request.Context())
	if err != nil {
		h.logger.Error("list domains", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	views := make([]domainSummaryView, len(summaries))
	for i, s := range summaries {
		views[i] = domainSummaryView{
			domainView: viewDomain(s.Domain),
			Jobs:       s.Jobs,
			Runs:       s.Runs,
			Workers:    s.Workers,
		}
	}
	c.JSON(http.StatusOK, gin.H{"domains": views, "count": len(views)})
}

type createDomainRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// POST /admin/domains
//
// The raw token appears in this response and nowhere else.
func (h *AdminHandler) Create(c *gin.Context) {
	var req createDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, token, err := h.admin.CreateDomain(c.Request.Context(), req.Name, req.DisplayName, req.Description)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"domain": viewDomain(created), "token": token})
	case errors.Is(err, domain.ErrDomainExists):
		c.JSON(http.StatusConflict, gin.H{"error": errDomainExists})
	case errors.Is(err, domain.ErrDomainInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("create domain", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

type updateDomainRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// PUT /admin/domains/:domain
func (h *AdminHandler) Update(c *gin.Context) {
	var req updateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.admin.UpdateDomain(c.Request.Context(), c.Param("domain"), req.DisplayName, req.Description)
	if err != nil {
		h.writeDomainError(c, "update domain", err)
		return
	}
	c.JSON(http.StatusOK, viewDomain(updated))
}

// POST /admin/domains/:domain/token
func (h *AdminHandler) RotateToken(c *gin.Context) {
	name := c.Param("domain")
	token, err := h.admin.RotateToken(c.Request.Context(), name)
	if err != nil {
		h.writeDomainError(c, "rotate token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": name, "token": token})
}

// DELETE /admin/domains/:domain
func (h *AdminHandler) Delete(c *gin.Context) {
	if err := h.admin.DeleteDomain(c.Request.Context(), c.Param("domain")); err != nil {
		h.writeDomainError(c, "delete domain", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *AdminHandler) writeDomainError(c *gin.Context, op string, err error) {
	if errors.Is(err, domain.ErrDomainNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": errDomainNotFound})
		return
	}
	h.logger.Error(op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}
