package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

type invitationTargets interface {
	FindGroup(ctx context.Context, id string) (*models.Group, error)
	FindMeeting(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Meeting, error)
}

// InvitationService sends group and meeting invitations as notifications.
type InvitationService struct {
	targets   invitationTargets
	notifier  notificationSender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInvitationService constructs the service.
func NewInvitationService(targets invitationTargets, notifier notificationSender, validate *validator.Validate, logger *zap.Logger) *InvitationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationService{targets: targets, notifier: notifier, validator: validate, logger: logger}
}

// InviteToGroup notifies the invited users. The inviter must belong to the group.
func (s *InvitationService) InviteToGroup(ctx context.Context, groupID, inviterID string, req dto.InvitationRequest) (*dto.DeliveryReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	group, err := s.targets.FindGroup(ctx, groupID)
	if err != nil {
		return nil, notFoundOr(err, "group not found", "failed to load group")
	}
	if group.CreatorID != inviterID && !group.HasMember(inviterID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only group members can invite")
	}

	inviter := inviterID
	return s.send(ctx, &models.Notification{
		Kind:       models.NotificationGroupInvite,
		Title:      "Group invitation",
		Message:    fmt.Sprintf("You have been invited to join %s.", group.Name),
		SenderID:   &inviter,
		Recipients: withoutValue(req.UserIDs, inviterID),
		Data: models.BuildPayload(models.NotificationGroupInvite, models.PayloadFields{
			GroupID:   group.ID,
			GroupName: group.Name,
		}),
	})
}

// InviteToMeeting notifies the invited users. The inviter must belong to the meeting.
func (s *InvitationService) InviteToMeeting(ctx context.Context, meetingID, inviterID string, req dto.InvitationRequest) (*dto.DeliveryReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	meeting, err := s.targets.FindMeeting(ctx, nil, meetingID)
	if err != nil {
		return nil, notFoundOr(err, "meeting not found", "failed to load meeting")
	}
	if meeting.CreatorID != inviterID && !meeting.HasMember(inviterID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only meeting members can invite")
	}

	inviter := inviterID
	return s.send(ctx, &models.Notification{
		Kind:       models.NotificationMeetingInvite,
		Title:      "Meeting invitation",
		Message:    fmt.Sprintf("You have been invited to %s.", meeting.Name),
		SenderID:   &inviter,
		Recipients: withoutValue(req.UserIDs, inviterID),
		Data: models.BuildPayload(models.NotificationMeetingInvite, models.PayloadFields{
			MeetingID:   meeting.ID,
			MeetingName: meeting.Name,
		}),
	})
}

func (s *InvitationService) send(ctx context.Context, n *models.Notification) (*dto.DeliveryReport, error) {
	if len(n.Recipients) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no one to invite")
	}
	return s.notifier.Notify(ctx, n)
}

func withoutValue(values []string, drop string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
