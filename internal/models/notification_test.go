package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayloadProposalResult(t *testing.T) {
	data := BuildPayload(NotificationProposalResult, PayloadFields{
		MeetingID:   "m-1",
		MeetingName: "Midterm review",
		ProposalID:  "p-1",
		Applied:     false,
		Reason:      CloseReasonExpired,
		Extra:       map[string]string{"type": "ignored", "course": "CS 1332"},
	})

	assert.Equal(t, "meeting_proposal_result", data["type"])
	assert.Equal(t, "m-1", data["meeting_id"])
	assert.Equal(t, "p-1", data["proposal_id"])
	assert.Equal(t, "false", data["applied"])
	assert.Equal(t, "EXPIRED", data["reason"])
	assert.Equal(t, "CS 1332", data["course"])
}

func TestBuildPayloadUnknownKindFallsBackToGeneric(t *testing.T) {
	data := BuildPayload(NotificationKind("weird"), PayloadFields{GroupID: "g-1"})
	assert.Equal(t, "generic", data["type"])
	_, ok := data["group_id"]
	assert.False(t, ok)
}

func TestNotificationDataScanAndValue(t *testing.T) {
	in := NotificationData{"type": "generic", "k": "v"}
	raw, err := in.Value()
	require.NoError(t, err)

	var out NotificationData
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
	assert.Error(t, out.Scan(42))
}
