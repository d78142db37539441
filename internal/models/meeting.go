package models

import "time"

// Group is a user-created study group attached to a course.
type Group struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatorID string    `db:"creator_id" json:"creator_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	MemberIDs []string  `db:"-" json:"member_ids,omitempty"`
}

// Meeting is a user-scheduled session of a course. StartTime is HH:MM.
type Meeting struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CreatorID   string    `db:"creator_id" json:"creator_id"`
	Name        string    `db:"name" json:"name"`
	Location    string    `db:"location" json:"location"`
	MeetingDate time.Time `db:"meeting_date" json:"meeting_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	Duration    int       `db:"duration_minutes" json:"duration_minutes"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	MemberIDs   []string  `db:"-" json:"member_ids,omitempty"`
}

// HasMember reports whether userID belongs to the meeting.
func (m *Meeting) HasMember(userID string) bool {
	return containsString(m.MemberIDs, userID)
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	return containsString(g.MemberIDs, userID)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
