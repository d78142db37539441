package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
	"github.com/noah-isme/gtcollab-api/pkg/response"
)

type proposalService interface {
	Create(ctx context.Context, meetingID, creatorID string, req dto.CreateProposalRequest) (*models.MeetingProposal, error)
	Get(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error)
	Approve(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error)
	Reject(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error)
}

// ProposalHandler exposes the meeting proposal workflow.
type ProposalHandler struct {
	service proposalService
}

// NewProposalHandler builds a new handler.
func NewProposalHandler(service proposalService) *ProposalHandler {
	return &ProposalHandler{service: service}
}

// Create godoc
// @Summary Propose a new location, date or time for a meeting
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Meeting ID"
// @Param payload body dto.CreateProposalRequest true "Proposal payload"
// @Success 201 {object} response.Envelope
// @Router /meetings/{id}/proposals [post]
func (h *ProposalHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}
	proposal, err := h.service.Create(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// Get godoc
// @Summary Get a meeting proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /meeting-proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	proposal, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// Approve godoc
// @Summary Approve a meeting proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /meeting-proposals/{id}/approve [post]
func (h *ProposalHandler) Approve(c *gin.Context) {
	h.vote(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a meeting proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /meeting-proposals/{id}/reject [post]
func (h *ProposalHandler) Reject(c *gin.Context) {
	h.vote(c, h.service.Reject)
}

func (h *ProposalHandler) vote(c *gin.Context, fn func(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error)) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	proposal, err := fn(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}
