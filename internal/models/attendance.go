package models

import "time"

// AttendanceRecord is an append-only attendance event against a subscription.
type AttendanceRecord struct {
	ID             string    `db:"id" json:"id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	ClassSessionID string    `db:"class_session_id" json:"class_session_id"`
	AttendedAt     time.Time `db:"attended_at" json:"attended_at"`
	WasPresent     bool      `db:"was_present" json:"was_present"`
	CompensationID *string   `db:"compensation_id" json:"compensation_id,omitempty"`
}
