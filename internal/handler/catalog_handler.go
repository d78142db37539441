package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	"github.com/noah-isme/gtcollab-api/pkg/response"
)

type catalogProgressService interface {
	Progress(ctx context.Context) (*dto.SyncProgress, error)
	CurrentTerm(ctx context.Context) (*models.Term, error)
}

type catalogSyncTrigger interface {
	TriggerAsync(ctx context.Context) (string, error)
}

// CatalogHandler exposes catalog sync status and the admin trigger.
type CatalogHandler struct {
	progress catalogProgressService
	sync     catalogSyncTrigger
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(progress catalogProgressService, sync catalogSyncTrigger) *CatalogHandler {
	return &CatalogHandler{progress: progress, sync: sync}
}

// Status godoc
// @Summary Catalog ingestion progress
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/status [get]
func (h *CatalogHandler) Status(c *gin.Context) {
	progress, err := h.progress.Progress(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// CurrentTerm godoc
// @Summary Current term
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /terms/current [get]
func (h *CatalogHandler) CurrentTerm(c *gin.Context) {
	term, err := h.progress.CurrentTerm(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// TriggerSync godoc
// @Summary Start a full catalog sync
// @Tags Admin
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/catalog/sync [post]
func (h *CatalogHandler) TriggerSync(c *gin.Context) {
	jobID, err := h.sync.TriggerAsync(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.SyncAccepted{JobID: jobID})
}
