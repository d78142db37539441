package models

import "time"

// Term is an academic enrollment period imported from the course catalog.
type Term struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	SubjectsLoaded bool      `db:"subjects_loaded" json:"subjects_loaded"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// IsCurrent reports whether today falls in [start - window, end], compared by calendar date.
func (t Term) IsCurrent(today time.Time, window time.Duration) bool {
	day := truncateDate(today)
	opens := truncateDate(t.StartDate).Add(-window)
	return !day.Before(opens) && !day.After(truncateDate(t.EndDate))
}

// InSession reports whether classes are running, ignoring the pre-term window.
func (t Term) InSession(today time.Time) bool {
	return t.IsCurrent(today, 0)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
