package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
	"github.com/noah-isme/gtcollab-api/pkg/logger"
)

const expirySweepBatch = 100

type proposalRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, proposal *models.MeetingProposal) error
	Get(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.MeetingProposal, error)
	RecordResponse(ctx context.Context, exec sqlx.ExtContext, response models.ProposalResponse) (bool, error)
	Close(ctx context.Context, exec sqlx.ExtContext, id string, applied bool, reason models.ProposalCloseReason, at time.Time) error
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type meetingRepository interface {
	FindMeeting(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Meeting, error)
	UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, meeting *models.Meeting) error
}

type notificationSender interface {
	Notify(ctx context.Context, n *models.Notification) (*dto.DeliveryReport, error)
}

// ProposalService runs the meeting-proposal consensus protocol.
// Votes and closes run in a transaction holding the proposal row lock.
type ProposalService struct {
	proposals proposalRepository
	meetings  meetingRepository
	notifier  notificationSender
	tx        txRunner
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	defaultExpiration int
}

// NewProposalService constructs the proposal engine.
func NewProposalService(proposals proposalRepository, meetings meetingRepository, notifier notificationSender, tx txRunner, validate *validator.Validate, metrics *MetricsService, defaultExpiration int, logger *zap.Logger) *ProposalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultExpiration <= 0 {
		defaultExpiration = 60
	}
	return &ProposalService{
		proposals:         proposals,
		meetings:          meetings,
		notifier:          notifier,
		tx:                tx,
		validator:         validate,
		metrics:           metrics,
		logger:            logger,
		now:               time.Now,
		defaultExpiration: defaultExpiration,
	}
}

// closeOutcome carries what must be announced once a transaction commits.
type closeOutcome struct {
	proposal *models.MeetingProposal
	meeting  *models.Meeting
	reason   models.ProposalCloseReason
	actorID  *string
}

// Create opens a proposal on meetingID. Omitted fields default to the meeting's current values.
// Every member other than the creator must respond; with no other members the proposal applies at once.
func (s *ProposalService) Create(ctx context.Context, meetingID, creatorID string, req dto.CreateProposalRequest) (*models.MeetingProposal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	var (
		proposal *models.MeetingProposal
		meeting  *models.Meeting
		outcome  *closeOutcome
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		exec := extOf(tx)
		m, err := s.loadMeeting(ctx, exec, meetingID)
		if err != nil {
			return err
		}
		if !m.HasMember(creatorID) {
			return appErrors.Clone(appErrors.ErrForbidden, "only meeting members can propose changes")
		}
		meeting = m

		p, err := s.buildProposal(m, creatorID, req)
		if err != nil {
			return err
		}
		if err := s.proposals.Create(ctx, exec, p); err != nil {
			return err
		}
		proposal = p

		if len(p.RequiredResponders) == 0 {
			outcome, err = s.apply(ctx, exec, p, m, &creatorID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to create meeting proposal")
	}

	if outcome != nil {
		s.announceClose(ctx, outcome)
		return proposal, nil
	}
	s.announceProposal(ctx, proposal, meeting)
	return proposal, nil
}

func (s *ProposalService) buildProposal(m *models.Meeting, creatorID string, req dto.CreateProposalRequest) (*models.MeetingProposal, error) {
	p := &models.MeetingProposal{
		MeetingID:         m.ID,
		CreatorID:         creatorID,
		Location:          m.Location,
		MeetingDate:       m.MeetingDate,
		StartTime:         m.StartTime,
		ExpirationMinutes: s.defaultExpiration,
		CreatedAt:         s.now().UTC(),
	}
	if req.Location != nil {
		p.Location = strings.TrimSpace(*req.Location)
	}
	if req.MeetingDate != nil {
		date, err := time.Parse("2006-01-02", *req.MeetingDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "meetingDate must be YYYY-MM-DD")
		}
		p.MeetingDate = date
	}
	if req.StartTime != nil {
		p.StartTime = *req.StartTime
	}
	if req.ExpirationMinutes != nil {
		p.ExpirationMinutes = *req.ExpirationMinutes
	}
	for _, id := range m.MemberIDs {
		if id != creatorID {
			p.RequiredResponders = append(p.RequiredResponders, id)
		}
	}
	return p, nil
}

// Approve records userID's approval and applies the proposal once every required responder has voted.
func (s *ProposalService) Approve(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error) {
	return s.vote(ctx, proposalID, userID, models.DecisionApprove)
}

// Reject records userID's veto and closes the proposal without applying it.
func (s *ProposalService) Reject(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error) {
	return s.vote(ctx, proposalID, userID, models.DecisionReject)
}

func (s *ProposalService) vote(ctx context.Context, proposalID, userID string, decision models.ProposalDecision) (*models.MeetingProposal, error) {
	var (
		proposal *models.MeetingProposal
		outcome  *closeOutcome
		expired  bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		exec := extOf(tx)
		p, err := s.proposals.Get(ctx, exec, proposalID, true)
		if err != nil {
			return err
		}
		proposal = p
		if p.Closed {
			return appErrors.ErrProposalClosed
		}

		if !p.IsRequiredResponder(userID) {
			return appErrors.Clone(appErrors.ErrForbidden, "not a required responder for this proposal")
		}
		now := s.now().UTC()
		if p.IsExpired(now) {
			expired = true
			outcome, err = s.close(ctx, exec, p, models.CloseReasonExpired, nil)
			return err
		}

		recorded, err := s.proposals.RecordResponse(ctx, exec, models.ProposalResponse{
			ProposalID:  p.ID,
			UserID:      userID,
			Decision:    decision,
			RespondedAt: now,
		})
		if err != nil {
			return err
		}
		if recorded {
			p.Responses = append(p.Responses, models.ProposalResponse{ProposalID: p.ID, UserID: userID, Decision: decision, RespondedAt: now})
		}

		actor := userID
		if decision == models.DecisionReject {
			outcome, err = s.close(ctx, exec, p, models.CloseReasonRejected, &actor)
			return err
		}
		if !p.AllResponded() {
			return nil
		}
		m, err := s.loadMeeting(ctx, exec, p.MeetingID)
		if err != nil {
			return err
		}
		outcome, err = s.apply(ctx, exec, p, m, &actor)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to record proposal response")
	}

	if outcome != nil {
		s.announceClose(ctx, outcome)
	}
	if expired {
		return proposal, appErrors.ErrProposalExpired
	}
	return proposal, nil
}

// Get returns a proposal visible to userID. An open proposal found expired is closed first.
func (s *ProposalService) Get(ctx context.Context, proposalID, userID string) (*models.MeetingProposal, error) {
	p, err := s.proposals.Get(ctx, nil, proposalID, false)
	if err != nil {
		return nil, s.translate(err, "failed to load meeting proposal")
	}
	if p.CreatorID != userID && !p.IsRequiredResponder(userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this proposal")
	}
	if p.Closed || !p.IsExpired(s.now()) {
		return p, nil
	}
	closed, err := s.expire(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if closed != nil {
		return closed, nil
	}
	return s.proposals.Get(ctx, nil, proposalID, false)
}

// ExpireDue closes every open proposal past its expiration. It returns the number closed.
func (s *ProposalService) ExpireDue(ctx context.Context) (int, error) {
	log := logger.ForContext(ctx, s.logger)
	ids, err := s.proposals.ListExpiredOpen(ctx, s.now().UTC(), expirySweepBatch)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired proposals")
	}
	closed := 0
	for _, id := range ids {
		p, err := s.expire(ctx, id)
		if err != nil {
			log.Warn("failed to expire proposal", zap.String("proposal_id", id), zap.Error(err))
			continue
		}
		if p != nil {
			closed++
		}
	}
	if closed > 0 {
		log.Info("expired meeting proposals", zap.Int("closed", closed))
	}
	return closed, nil
}

// expire closes one proposal as EXPIRED when it is still open and past due. It returns nil when nothing changed.
func (s *ProposalService) expire(ctx context.Context, proposalID string) (*models.MeetingProposal, error) {
	var outcome *closeOutcome
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		exec := extOf(tx)
		p, err := s.proposals.Get(ctx, exec, proposalID, true)
		if err != nil {
			return err
		}
		if p.Closed || !p.IsExpired(s.now().UTC()) {
			return nil
		}
		outcome, err = s.close(ctx, exec, p, models.CloseReasonExpired, nil)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to expire meeting proposal")
	}
	if outcome == nil {
		return nil, nil
	}
	s.announceClose(ctx, outcome)
	return outcome.proposal, nil
}

func (s *ProposalService) apply(ctx context.Context, exec sqlx.ExtContext, p *models.MeetingProposal, m *models.Meeting, actorID *string) (*closeOutcome, error) {
	p.ApplyTo(m)
	if err := s.meetings.UpdateSchedule(ctx, exec, m); err != nil {
		return nil, err
	}
	outcome, err := s.close(ctx, exec, p, models.CloseReasonApplied, actorID)
	if err != nil {
		return nil, err
	}
	outcome.meeting = m
	return outcome, nil
}

func (s *ProposalService) close(ctx context.Context, exec sqlx.ExtContext, p *models.MeetingProposal, reason models.ProposalCloseReason, actorID *string) (*closeOutcome, error) {
	now := s.now().UTC()
	applied := reason == models.CloseReasonApplied
	if err := s.proposals.Close(ctx, exec, p.ID, applied, reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrProposalClosed
		}
		return nil, err
	}
	p.Closed, p.Applied, p.CloseReason, p.ClosedAt = true, applied, &reason, &now
	return &closeOutcome{proposal: p, reason: reason, actorID: actorID}, nil
}

func (s *ProposalService) loadMeeting(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Meeting, error) {
	m, err := s.meetings.FindMeeting(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return nil, err
	}
	return m, nil
}

func (s *ProposalService) announceProposal(ctx context.Context, p *models.MeetingProposal, m *models.Meeting) {
	creator := p.CreatorID
	date := p.MeetingDate.Format("2006-01-02")
	n := &models.Notification{
		Kind:       models.NotificationProposal,
		Title:      "Meeting change proposed",
		Message: fmt.Sprintf("Proposed change to %s: %s on %s at %s. Please approve or reject it.",
			m.Name, p.Location, date, p.StartTime),
		SenderID:   &creator,
		Recipients: p.RequiredResponders,
		Data: models.BuildPayload(models.NotificationProposal, models.PayloadFields{
			MeetingID:   m.ID,
			MeetingName: m.Name,
			ProposalID:  p.ID,
			Extra: map[string]string{
				"location":     p.Location,
				"meeting_date": date,
				"start_time":   p.StartTime,
				"expires_at":   p.ExpiresAt().UTC().Format(time.RFC3339),
			},
		}),
	}
	s.send(ctx, n)
}

// announceClose broadcasts the result of a closed proposal to every meeting member, creator included.
func (s *ProposalService) announceClose(ctx context.Context, o *closeOutcome) {
	s.metrics.RecordProposalClosed(o.reason)

	m := o.meeting
	if m == nil {
		loaded, err := s.meetings.FindMeeting(ctx, nil, o.proposal.MeetingID)
		if err != nil {
			logger.ForContext(ctx, s.logger).Warn("failed to load meeting for proposal result",
				zap.String("proposal_id", o.proposal.ID), zap.Error(err))
			return
		}
		m = loaded
	}

	recipients := append([]string{}, m.MemberIDs...)
	if !containsValue(recipients, o.proposal.CreatorID) {
		recipients = append(recipients, o.proposal.CreatorID)
	}

	var title, message string
	switch o.reason {
	case models.CloseReasonApplied:
		title, message = "Meeting updated", fmt.Sprintf("The proposed change to %s was approved and applied.", m.Name)
	case models.CloseReasonRejected:
		title, message = "Meeting change rejected", fmt.Sprintf("The proposed change to %s was rejected.", m.Name)
	default:
		title, message = "Meeting change expired", fmt.Sprintf("The proposed change to %s expired before everyone responded.", m.Name)
	}

	s.send(ctx, &models.Notification{
		Kind:       models.NotificationProposalResult,
		Title:      title,
		Message:    message,
		SenderID:   o.actorID,
		Recipients: recipients,
		Data: models.BuildPayload(models.NotificationProposalResult, models.PayloadFields{
			MeetingID:   m.ID,
			MeetingName: m.Name,
			ProposalID:  o.proposal.ID,
			Applied:     o.proposal.Applied,
			Reason:      o.reason,
		}),
	})
}

func (s *ProposalService) send(ctx context.Context, n *models.Notification) {
	if s.notifier == nil || len(n.Recipients) == 0 {
		return
	}
	if _, err := s.notifier.Notify(ctx, n); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to notify proposal participants",
			zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (s *ProposalService) translate(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "meeting proposal not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
