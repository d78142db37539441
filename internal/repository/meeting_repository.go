package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// MeetingRepository reads meetings and groups and applies schedule changes.
type MeetingRepository struct {
	db *sqlx.DB
}

// NewMeetingRepository constructs the repository.
func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindMeeting loads a meeting with its member ids.
func (r *MeetingRepository) FindMeeting(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Meeting, error) {
	target := r.exec(exec)
	const query = `SELECT id, course_id, creator_id, name, location, meeting_date, start_time, duration_minutes, updated_at
FROM meetings WHERE id = $1`
	var meeting models.Meeting
	if err := sqlx.GetContext(ctx, target, &meeting, query, id); err != nil {
		return nil, err
	}
	const members = `SELECT user_id FROM meeting_members WHERE meeting_id = $1 ORDER BY joined_at, user_id`
	if err := sqlx.SelectContext(ctx, target, &meeting.MemberIDs, members, id); err != nil {
		return nil, fmt.Errorf("list meeting members: %w", err)
	}
	return &meeting, nil
}

// FindGroup loads a group with its member ids.
func (r *MeetingRepository) FindGroup(ctx context.Context, id string) (*models.Group, error) {
	const query = `SELECT id, course_id, creator_id, name, created_at FROM groups WHERE id = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	const members = `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`
	if err := r.db.SelectContext(ctx, &group.MemberIDs, members, id); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return &group, nil
}

// UpdateSchedule persists the meeting's location, date and start time.
func (r *MeetingRepository) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, meeting *models.Meeting) error {
	meeting.UpdatedAt = time.Now().UTC()
	const query = `UPDATE meetings SET location = :location, meeting_date = :meeting_date, start_time = :start_time, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, meeting); err != nil {
		return fmt.Errorf("update meeting schedule: %w", err)
	}
	return nil
}
