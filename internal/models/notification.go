package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotificationKind tags the business event a notification describes.
type NotificationKind string

const (
	NotificationGroupInvite    NotificationKind = "group_invitation"
	NotificationMeetingInvite  NotificationKind = "meeting_invitation"
	NotificationProposal       NotificationKind = "meeting_proposal"
	NotificationProposalResult NotificationKind = "meeting_proposal_result"
	NotificationGeneric        NotificationKind = "generic"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationGroupInvite, NotificationMeetingInvite, NotificationProposal, NotificationProposalResult, NotificationGeneric:
		return true
	}
	return false
}

// NotificationData is the push data map persisted as JSONB. It always carries "type".
type NotificationData map[string]string

// Value marshals the data map for persistence.
func (d NotificationData) Value() (driver.Value, error) {
	if d == nil {
		d = NotificationData{}
	}
	raw, err := json.Marshal(map[string]string(d))
	if err != nil {
		return nil, fmt.Errorf("marshal notification data: %w", err)
	}
	return raw, nil
}

// Scan unmarshals a JSONB column.
func (d *NotificationData) Scan(value interface{}) error {
	if value == nil {
		*d = NotificationData{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for NotificationData", value)
	}
	out := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	*d = out
	return nil
}

// Notification is a message addressed to a set of users.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	Kind       NotificationKind `db:"kind" json:"kind"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	SenderID   *string          `db:"sender_id" json:"sender_id,omitempty"`
	Data       NotificationData `db:"data" json:"data"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	Recipients []string         `db:"-" json:"recipients,omitempty"`
	ReadAt     *time.Time       `db:"read_at" json:"read_at,omitempty"`
}

// PayloadFields holds the event attributes used to build push data. Unused fields are ignored per kind.
type PayloadFields struct {
	GroupID     string
	GroupName   string
	MeetingID   string
	MeetingName string
	ProposalID  string
	Applied     bool
	Reason      ProposalCloseReason
	Extra       map[string]string
}

// BuildPayload returns the push data map for kind.
func BuildPayload(kind NotificationKind, f PayloadFields) NotificationData {
	data := NotificationData{"type": string(kind)}
	switch kind {
	case NotificationGroupInvite:
		data["group_id"] = f.GroupID
		data["group_name"] = f.GroupName
	case NotificationMeetingInvite:
		data["meeting_id"] = f.MeetingID
		data["meeting_name"] = f.MeetingName
	case NotificationProposal:
		data["meeting_id"] = f.MeetingID
		data["meeting_name"] = f.MeetingName
		data["proposal_id"] = f.ProposalID
	case NotificationProposalResult:
		data["meeting_id"] = f.MeetingID
		data["meeting_name"] = f.MeetingName
		data["proposal_id"] = f.ProposalID
		data["applied"] = strconv.FormatBool(f.Applied)
		if f.Reason != "" {
			data["reason"] = string(f.Reason)
		}
	default:
		data["type"] = string(NotificationGeneric)
	}
	for k, v := range f.Extra {
		if _, taken := data[k]; !taken {
			data[k] = v
		}
	}
	return data
}
