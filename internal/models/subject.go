package models

import "time"

// Subject groups courses of one department within a term. Unique per (term, code).
type Subject struct {
	ID            string    `db:"id" json:"id"`
	TermID        string    `db:"term_id" json:"term_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	CoursesLoaded bool      `db:"courses_loaded" json:"courses_loaded"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SubjectCourseCount pairs a subject with the number of courses currently attached to it.
type SubjectCourseCount struct {
	SubjectID     string `db:"subject_id"`
	Code          string `db:"code"`
	CoursesLoaded bool   `db:"courses_loaded"`
	Courses       int    `db:"courses"`
}
