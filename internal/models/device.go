package models

import "time"

// Device is a push registration owned by a user.
type Device struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Platform       string    `db:"platform" json:"platform"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
