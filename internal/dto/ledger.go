package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestEnrollmentRequest is a student's request to join a class.
type RequestEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	ClassID   string `json:"class_id" validate:"required,max=64"`
}

// ApproveEnrollmentRequest approves a pending enrollment and provisions its subscription.
// Zero period or limit falls back to the configured defaults.
type ApproveEnrollmentRequest struct {
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=1000"`
	PeriodDays int     `json:"period_days" validate:"omitempty,min=1,max=366"`
	ClassLimit int     `json:"class_limit" validate:"omitempty,min=1,max=500"`
}

// RejectEnrollmentRequest rejects a pending enrollment.
type RejectEnrollmentRequest struct {
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=1000"`
}

// RecordAttendanceRequest records one class session against a subscription.
type RecordAttendanceRequest struct {
	ClassSessionID string `json:"class_session_id" validate:"required,max=64"`
	WasPresent     *bool  `json:"was_present" validate:"required"`
}

// FeeLedgerRequest assesses or adjusts a student's total fee.
type FeeLedgerRequest struct {
	TotalFee decimal.Decimal `json:"total_fee"`
	DueDate  *time.Time      `json:"due_date"`
}

// RecordPaymentRequest is an admin-recorded payment.
type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method" validate:"required,max=32"`
	TransactionID string          `json:"transaction_id" validate:"required,max=128"`
}

// GatewayPaymentRequest is the verified callback body of the payment gateway. PaymentID is the
// idempotency key.
type GatewayPaymentRequest struct {
	OrderID   string          `json:"order_id" validate:"required,max=128"`
	PaymentID string          `json:"payment_id" validate:"required,max=128"`
	StudentID string          `json:"student_id" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,max=32"`
	Status    string          `json:"status" validate:"required,oneof=SUCCESS FAILED"`
}

// AssignCompensationRequest requests a make-up session for an absence.
type AssignCompensationRequest struct {
	MissedAttendanceID string `json:"missed_attendance_id" validate:"required,max=64"`
	CandidateSessionID string `json:"candidate_session_id" validate:"required,max=64"`
	Reason             string `json:"reason" validate:"required,max=500"`
}

// CancelCompensationRequest withdraws an outstanding make-up assignment.
type CancelCompensationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReceiptLinkResponse carries a signed receipt download path.
type ReceiptLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
