package models

import "time"

// SubscriptionStatus represents the usage state of a subscription period.
type SubscriptionStatus string

// Possible subscription statuses.
const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExhausted SubscriptionStatus = "EXHAUSTED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Subscription caps how many classes a student may attend within a billing period.
type Subscription struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	EnrollmentID    string             `db:"enrollment_id" json:"enrollment_id"`
	PeriodStart     time.Time          `db:"period_start" json:"period_start"`
	PeriodEnd       time.Time          `db:"period_end" json:"period_end"`
	ClassLimit      int                `db:"class_limit" json:"class_limit"`
	ClassesAttended int                `db:"classes_attended" json:"classes_attended"`
	Status          SubscriptionStatus `db:"status" json:"status"`
	Version         int                `db:"version" json:"version"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// ExpiredAt reports whether the period has ended at now.
func (s Subscription) ExpiredAt(now time.Time) bool {
	return now.After(s.PeriodEnd)
}

// Exhausted reports whether every class credit has been consumed.
func (s Subscription) Exhausted() bool {
	return s.ClassesAttended >= s.ClassLimit
}

// EffectiveStatus derives the status at now. Expiry wins over the stored status because the
// stored value only changes on writes and sweeps.
func (s Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.ExpiredAt(now) {
		return SubscriptionStatusExpired
	}
	if s.Exhausted() {
		return SubscriptionStatusExhausted
	}
	return SubscriptionStatusActive
}

// RemainingClasses returns the unused credits.
func (s Subscription) RemainingClasses() int {
	if s.ClassesAttended >= s.ClassLimit {
		return 0
	}
	return s.ClassLimit - s.ClassesAttended
}
