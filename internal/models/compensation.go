package models

import "time"

// CompensationStatus represents the lifecycle of a make-up class assignment.
type CompensationStatus string

// Possible compensation statuses. COMPLETED and CANCELLED are terminal.
const (
	CompensationStatusAssigned  CompensationStatus = "ASSIGNED"
	CompensationStatusCompleted CompensationStatus = "COMPLETED"
	CompensationStatusCancelled CompensationStatus = "CANCELLED"
)

// CompensationAssignment reschedules a missed session onto another class session.
type CompensationAssignment struct {
	ID                    string             `db:"id" json:"id"`
	StudentID             string             `db:"student_id" json:"student_id"`
	MissedAttendanceID    string             `db:"missed_attendance_id" json:"missed_attendance_id"`
	MissedClassID         string             `db:"missed_class_id" json:"missed_class_id"`
	MissedDate            time.Time          `db:"missed_date" json:"missed_date"`
	Reason                string             `db:"reason" json:"reason"`
	AssignedSessionID     string             `db:"assigned_session_id" json:"assigned_session_id"`
	Status                CompensationStatus `db:"status" json:"status"`
	CancelReason          *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CompletedAttendanceID *string            `db:"completed_attendance_id" json:"completed_attendance_id,omitempty"`
	Version               int                `db:"version" json:"version"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updated_at"`
}

// CompensationFilter provides filters for listing assignments.
type CompensationFilter struct {
	StudentID string
	Status    CompensationStatus
	Page      int
	PageSize  int
}
