package service

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return fn(ctx, nil)
}

type memProposalStore struct {
	mu    sync.Mutex
	seq   int
	items map[string]*models.MeetingProposal
}

func newMemProposalStore() *memProposalStore {
	return &memProposalStore{items: map[string]*models.MeetingProposal{}}
}

func cloneProposal(p *models.MeetingProposal) *models.MeetingProposal {
	clone := *p
	clone.RequiredResponders = append([]string(nil), p.RequiredResponders...)
	clone.Responses = append([]models.ProposalResponse(nil), p.Responses...)
	return &clone
}

func (m *memProposalStore) Create(ctx context.Context, exec sqlx.ExtContext, p *models.MeetingProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = "proposal-" + strconv.Itoa(m.seq)
	m.items[p.ID] = cloneProposal(p)
	return nil
}

func (m *memProposalStore) Get(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.MeetingProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneProposal(p), nil
}

func (m *memProposalStore) RecordResponse(ctx context.Context, exec sqlx.ExtContext, r models.ProposalResponse) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.items[r.ProposalID]
	if p.HasResponded(r.UserID) {
		return false, nil
	}
	p.Responses = append(p.Responses, r)
	return true, nil
}

func (m *memProposalStore) Close(ctx context.Context, exec sqlx.ExtContext, id string, applied bool, reason models.ProposalCloseReason, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.items[id]
	if p == nil || p.Closed {
		return sql.ErrNoRows
	}
	p.Closed, p.Applied, p.CloseReason, p.ClosedAt = true, applied, &reason, &at
	return nil
}

func (m *memProposalStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.items {
		if !p.Closed && p.IsExpired(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memMeetingStore struct {
	mu       sync.Mutex
	meetings map[string]*models.Meeting
	groups   map[string]*models.Group
	updates  int
}

func (m *memMeetingStore) FindMeeting(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *meeting
	clone.MemberIDs = append([]string(nil), meeting.MemberIDs...)
	return &clone, nil
}

func (m *memMeetingStore) FindGroup(ctx context.Context, id string) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *group
	return &clone, nil
}

func (m *memMeetingStore) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, meeting *models.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.meetings[meeting.ID]
	stored.Location, stored.MeetingDate, stored.StartTime = meeting.Location, meeting.MeetingDate, meeting.StartTime
	m.updates++
	return nil
}

type notifierStub struct {
	mu   sync.Mutex
	sent []*models.Notification
	err  error
}

func (n *notifierStub) Notify(ctx context.Context, notification *models.Notification) (*dto.DeliveryReport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	if n.err != nil {
		return nil, n.err
	}
	return &dto.DeliveryReport{Recipients: len(notification.Recipients)}, nil
}

func (n *notifierStub) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationKind, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Kind
	}
	return out
}

var proposalNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type proposalFixture struct {
	svc       *ProposalService
	proposals *memProposalStore
	meetings  *memMeetingStore
	notifier  *notifierStub
	clock     *time.Time
}

func newProposalFixture(t *testing.T, members ...string) *proposalFixture {
	t.Helper()
	meetings := &memMeetingStore{meetings: map[string]*models.Meeting{
		"meeting-1": {
			ID:          "meeting-1",
			CreatorID:   "alice",
			Name:        "CS 1332 review",
			Location:    "Library",
			MeetingDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			StartTime:   "14:00",
			MemberIDs:   members,
		},
	}}
	f := &proposalFixture{
		proposals: newMemProposalStore(),
		meetings:  meetings,
		notifier:  &notifierStub{},
	}
	now := proposalNow
	f.clock = &now
	f.svc = NewProposalService(f.proposals, meetings, f.notifier, inlineTx{}, nil, nil, 60, nil)
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func TestProposalCreateDefaultsAndNotifiesResponders(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	location := "Klaus 1456"

	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{Location: &location})
	require.NoError(t, err)

	assert.Equal(t, "Klaus 1456", p.Location)
	assert.Equal(t, "14:00", p.StartTime)
	assert.Equal(t, 60, p.ExpirationMinutes)
	assert.Equal(t, []string{"bob", "carol"}, p.RequiredResponders)
	assert.False(t, p.Closed)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, models.NotificationProposal, sent.Kind)
	assert.Equal(t, []string{"bob", "carol"}, sent.Recipients)
	assert.Equal(t, p.ID, sent.Data["proposal_id"])
	assert.Equal(t, "Klaus 1456", sent.Data["location"])
	assert.Equal(t, "2026-03-05", sent.Data["meeting_date"])
	assert.Equal(t, "14:00", sent.Data["start_time"])
	assert.Equal(t, "2026-03-02T10:00:00Z", sent.Data["expires_at"])
	assert.Contains(t, sent.Message, "Klaus 1456 on 2026-03-05 at 14:00")
}

func TestProposalCreateRequiresMembership(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")

	_, err := f.svc.Create(context.Background(), "meeting-1", "mallory", dto.CreateProposalRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Create(context.Background(), "missing", "alice", dto.CreateProposalRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.notifier.sent)
}

func TestProposalCreateRejectsInvalidPayload(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")
	bad := "25:99"

	_, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{StartTime: &bad})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestProposalWithoutOtherMembersAppliesImmediately(t *testing.T) {
	f := newProposalFixture(t, "alice")
	start := "16:30"

	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{StartTime: &start})
	require.NoError(t, err)

	assert.True(t, p.Closed)
	assert.True(t, p.Applied)
	assert.Equal(t, "16:30", f.meetings.meetings["meeting-1"].StartTime)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationProposalResult, f.notifier.sent[0].Kind)
	assert.Equal(t, []string{"alice"}, f.notifier.sent[0].Recipients)
}

func TestProposalAppliesAfterEveryApproval(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	date := "2026-03-06"
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{MeetingDate: &date})
	require.NoError(t, err)

	p, err = f.svc.Approve(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	assert.False(t, p.Closed)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, 0, f.meetings.updates)

	p, err = f.svc.Approve(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, p.Responses, 1)

	p, err = f.svc.Approve(context.Background(), p.ID, "carol")
	require.NoError(t, err)
	assert.True(t, p.Closed)
	assert.True(t, p.Applied)
	require.NotNil(t, p.CloseReason)
	assert.Equal(t, models.CloseReasonApplied, *p.CloseReason)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), f.meetings.meetings["meeting-1"].MeetingDate)

	assert.Equal(t, []models.NotificationKind{models.NotificationProposal, models.NotificationProposalResult}, f.notifier.kinds())
	result := f.notifier.sent[1]
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, result.Recipients)
	assert.Equal(t, "true", result.Data["applied"])
}

func TestProposalSingleVetoRejects(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	location := "Online"
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{Location: &location})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	p, err = f.svc.Reject(context.Background(), p.ID, "carol")
	require.NoError(t, err)

	assert.True(t, p.Closed)
	assert.False(t, p.Applied)
	assert.Equal(t, models.CloseReasonRejected, *p.CloseReason)
	assert.Equal(t, "Library", f.meetings.meetings["meeting-1"].Location)
	assert.Equal(t, 0, f.meetings.updates)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "false", f.notifier.sent[1].Data["applied"])
	assert.Equal(t, "carol", *f.notifier.sent[1].SenderID)
}

func TestProposalClosedIsImmutable(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)
	_, err = f.svc.Reject(context.Background(), p.ID, "bob")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), p.ID, "carol")
	assert.True(t, appErrors.Is(err, appErrors.ErrProposalClosed))
	_, err = f.svc.Reject(context.Background(), p.ID, "carol")
	assert.True(t, appErrors.Is(err, appErrors.ErrProposalClosed))

	stored := f.proposals.items[p.ID]
	assert.Len(t, stored.Responses, 1)
	assert.Len(t, f.notifier.sent, 2)
}

func TestProposalVoteRequiresResponder(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), p.ID, "alice")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.Reject(context.Background(), p.ID, "mallory")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.Approve(context.Background(), "missing", "bob")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.False(t, f.proposals.items[p.ID].Closed)
}

func TestProposalVoteByOutsiderOnExpiredProposalChangesNothing(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)

	*f.clock = proposalNow.Add(61 * time.Minute)
	_, err = f.svc.Approve(context.Background(), p.ID, "mallory")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.Reject(context.Background(), p.ID, "alice")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	stored := f.proposals.items[p.ID]
	assert.False(t, stored.Closed)
	assert.Nil(t, stored.CloseReason)
	assert.Len(t, f.notifier.sent, 1)
}

func TestProposalVoteAfterExpiryClosesAsExpired(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)

	*f.clock = proposalNow.Add(61 * time.Minute)
	_, err = f.svc.Approve(context.Background(), p.ID, "bob")
	assert.True(t, appErrors.Is(err, appErrors.ErrProposalExpired))

	stored := f.proposals.items[p.ID]
	assert.True(t, stored.Closed)
	assert.False(t, stored.Applied)
	assert.Equal(t, models.CloseReasonExpired, *stored.CloseReason)
	assert.Empty(t, stored.Responses)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "EXPIRED", f.notifier.sent[1].Data["reason"])
	assert.Nil(t, f.notifier.sent[1].SenderID)
}

func TestProposalExpiryBoundaryIsExclusive(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)

	*f.clock = proposalNow.Add(60 * time.Minute)
	p, err = f.svc.Approve(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	assert.True(t, p.Applied)
}

func TestProposalExpireDue(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob", "carol")
	short := 10
	expiring, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{ExpirationMinutes: &short})
	require.NoError(t, err)
	fresh, err := f.svc.Create(context.Background(), "meeting-1", "bob", dto.CreateProposalRequest{})
	require.NoError(t, err)

	*f.clock = proposalNow.Add(30 * time.Minute)
	closed, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.True(t, f.proposals.items[expiring.ID].Closed)
	assert.False(t, f.proposals.items[fresh.ID].Closed)

	closed, err = f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestProposalGetClosesExpiredOnRead(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), p.ID, "mallory")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	open, err := f.svc.Get(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	assert.False(t, open.Closed)

	*f.clock = proposalNow.Add(2 * time.Hour)
	got, err := f.svc.Get(context.Background(), p.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.Equal(t, models.CloseReasonExpired, *got.CloseReason)
}

func TestProposalNotifyFailureDoesNotFailVote(t *testing.T) {
	f := newProposalFixture(t, "alice", "bob")
	f.notifier.err = assert.AnError
	p, err := f.svc.Create(context.Background(), "meeting-1", "alice", dto.CreateProposalRequest{})
	require.NoError(t, err)

	p, err = f.svc.Approve(context.Background(), p.ID, "bob")
	require.NoError(t, err)
	assert.True(t, p.Applied)
}
