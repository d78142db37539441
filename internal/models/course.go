package models

import "time"

// Course is one catalog offering identified by (subject, course_number).
// Courses missing from the latest catalog fetch stay with IsCancelled set.
type Course struct {
	ID           string    `db:"id" json:"id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	CourseNumber string    `db:"course_number" json:"course_number"`
	Name         string    `db:"name" json:"name"`
	IsCancelled  bool      `db:"is_cancelled" json:"is_cancelled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Section is a catalog tag shared across courses, deduplicated by name.
type Section struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// MeetingTime is a recurring class slot. Times are formatted HH:MM.
type MeetingTime struct {
	ID        string  `db:"id" json:"id"`
	CourseID  string  `db:"course_id" json:"course_id"`
	MeetDays  *string `db:"meet_days" json:"meet_days,omitempty"`
	StartTime *string `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string `db:"end_time" json:"end_time,omitempty"`
}
