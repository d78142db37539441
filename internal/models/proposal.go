package models

import "time"

// ProposalDecision is a single member's vote.
type ProposalDecision string

const (
	DecisionApprove ProposalDecision = "APPROVE"
	DecisionReject  ProposalDecision = "REJECT"
)

// ProposalCloseReason explains how a proposal reached its terminal state.
type ProposalCloseReason string

const (
	CloseReasonApplied  ProposalCloseReason = "APPLIED"
	CloseReasonRejected ProposalCloseReason = "REJECTED"
	CloseReasonExpired  ProposalCloseReason = "EXPIRED"
)

// MeetingProposal is a pending change to a meeting's location, date or time.
// It is open until closed; a closed proposal never changes again.
type MeetingProposal struct {
	ID                string               `db:"id" json:"id"`
	MeetingID         string               `db:"meeting_id" json:"meeting_id"`
	CreatorID         string               `db:"creator_id" json:"creator_id"`
	Location          string               `db:"location" json:"location"`
	MeetingDate       time.Time            `db:"meeting_date" json:"meeting_date"`
	StartTime         string               `db:"start_time" json:"start_time"`
	ExpirationMinutes int                  `db:"expiration_minutes" json:"expiration_minutes"`
	Applied           bool                 `db:"applied" json:"applied"`
	Closed            bool                 `db:"closed" json:"closed"`
	CloseReason       *ProposalCloseReason `db:"close_reason" json:"close_reason,omitempty"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	ClosedAt          *time.Time           `db:"closed_at" json:"closed_at,omitempty"`

	RequiredResponders []string           `db:"-" json:"required_responders"`
	Responses          []ProposalResponse `db:"-" json:"responses"`
}

// ProposalResponse records one responder's vote.
type ProposalResponse struct {
	ProposalID  string           `db:"proposal_id" json:"proposal_id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Decision    ProposalDecision `db:"decision" json:"decision"`
	RespondedAt time.Time        `db:"responded_at" json:"responded_at"`
}

// ExpiresAt is the instant after which the proposal is expired.
func (p *MeetingProposal) ExpiresAt() time.Time {
	return p.CreatedAt.Add(time.Duration(p.ExpirationMinutes) * time.Minute)
}

// IsExpired reports now > created_at + expiration_minutes.
func (p *MeetingProposal) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt())
}

// IsRequiredResponder reports whether userID must respond before the proposal can be applied.
func (p *MeetingProposal) IsRequiredResponder(userID string) bool {
	return containsString(p.RequiredResponders, userID)
}

// HasResponded reports whether userID has already voted.
func (p *MeetingProposal) HasResponded(userID string) bool {
	for _, r := range p.Responses {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// AllResponded reports whether every required responder has voted.
func (p *MeetingProposal) AllResponded() bool {
	for _, id := range p.RequiredResponders {
		if !p.HasResponded(id) {
			return false
		}
	}
	return true
}

// ApplyTo copies the proposed fields onto m.
func (p *MeetingProposal) ApplyTo(m *Meeting) {
	m.Location = p.Location
	m.MeetingDate = p.MeetingDate
	m.StartTime = p.StartTime
}
