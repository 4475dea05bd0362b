package models

import "time"

// EnrollmentStatus represents the approval lifecycle of an enrollment request.
type EnrollmentStatus string

// Possible enrollment statuses. Everything except PENDING is terminal.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// IsActive reports whether the status blocks a second request for the same class.
func (s EnrollmentStatus) IsActive() bool {
	return s == EnrollmentStatusPending || s == EnrollmentStatusApproved
}

// EnrollmentDecision is the admin verdict on a pending enrollment.
type EnrollmentDecision string

// Admin decisions.
const (
	DecisionApprove EnrollmentDecision = "APPROVE"
	DecisionReject  EnrollmentDecision = "REJECT"
)

// Enrollment captures a student's request to join a class.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	DecidedAt  *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	AdminNotes *string          `db:"admin_notes" json:"admin_notes,omitempty"`
	DecidedBy  *string          `db:"decided_by" json:"decided_by,omitempty"`
	Version    int              `db:"version" json:"version"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
