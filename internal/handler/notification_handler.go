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

type notificationService interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
}

type invitationService interface {
	InviteToGroup(ctx context.Context, groupID, inviterID string, req dto.InvitationRequest) (*dto.DeliveryReport, error)
	InviteToMeeting(ctx context.Context, meetingID, inviterID string, req dto.InvitationRequest) (*dto.DeliveryReport, error)
}

type deviceService interface {
	Register(ctx context.Context, userID string, req dto.RegisterDeviceRequest) (*models.Device, error)
}

// NotificationHandler serves notifications, invitations and device registration.
type NotificationHandler struct {
	notifications notificationService
	invitations   invitationService
	devices       deviceService
}

// NewNotificationHandler builds a new handler.
func NewNotificationHandler(notifications notificationService, invitations invitationService, devices deviceService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, invitations: invitations, devices: devices}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param limit query int false "Max items (default 50)"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var query dto.NotificationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, err := h.notifications.ListForUser(c.Request.Context(), claims.UserID, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// InviteToGroup godoc
// @Summary Invite users to a group
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.InvitationRequest true "Invitees"
// @Success 201 {object} response.Envelope
// @Router /groups/{id}/invitations [post]
func (h *NotificationHandler) InviteToGroup(c *gin.Context) {
	h.invite(c, h.invitations.InviteToGroup)
}

// InviteToMeeting godoc
// @Summary Invite users to a meeting
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "Meeting ID"
// @Param payload body dto.InvitationRequest true "Invitees"
// @Success 201 {object} response.Envelope
// @Router /meetings/{id}/invitations [post]
func (h *NotificationHandler) InviteToMeeting(c *gin.Context) {
	h.invite(c, h.invitations.InviteToMeeting)
}

func (h *NotificationHandler) invite(c *gin.Context, fn func(ctx context.Context, targetID, inviterID string, req dto.InvitationRequest) (*dto.DeliveryReport, error)) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.InvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}
	report, err := fn(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// RegisterDevice godoc
// @Summary Register a push device for the caller
// @Tags Devices
// @Accept json
// @Produce json
// @Param payload body dto.RegisterDeviceRequest true "Device"
// @Success 201 {object} response.Envelope
// @Router /devices [post]
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid device payload"))
		return
	}
	device, err := h.devices.Register(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, device)
}
