package dto

// CreateProposalRequest proposes new values for a meeting. Omitted fields keep the meeting's current values.
type CreateProposalRequest struct {
	Location          *string `json:"location" validate:"omitempty,max=255"`
	MeetingDate       *string `json:"meetingDate" validate:"omitempty,datetime=2006-01-02"`
	StartTime         *string `json:"startTime" validate:"omitempty,datetime=15:04"`
	ExpirationMinutes *int    `json:"expirationMinutes" validate:"omitempty,min=1,max=10080"`
}
