package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus is derived from the ledger totals and never stored.
type FeeStatus string

// Derived fee statuses.
const (
	FeeStatusPaid    FeeStatus = "paid"
	FeeStatusPartial FeeStatus = "partial"
	FeeStatusPending FeeStatus = "pending"
)

// PaymentStatus records the gateway or admin outcome of a payment attempt.
type PaymentStatus string

// Payment outcomes.
const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// FeeLedger is the running total of fees charged versus paid for a student.
type FeeLedger struct {
	StudentID   string          `db:"student_id" json:"student_id"`
	TotalFee    decimal.Decimal `db:"total_fee" json:"total_fee"`
	PaidAmount  decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueDate     *time.Time      `db:"due_date" json:"due_date,omitempty"`
	ReceiptYear int             `db:"receipt_year" json:"-"`
	ReceiptSeq  int             `db:"receipt_seq" json:"-"`
	Version     int             `db:"version" json:"version"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Payments    []FeePayment    `db:"-" json:"payments,omitempty"`
}

// Remaining returns the outstanding balance.
func (l FeeLedger) Remaining() decimal.Decimal {
	return l.TotalFee.Sub(l.PaidAmount)
}

// Status derives paid/partial/pending from the totals.
func (l FeeLedger) Status() FeeStatus {
	switch {
	case l.PaidAmount.IsPositive() && l.PaidAmount.Equal(l.TotalFee):
		return FeeStatusPaid
	case l.PaidAmount.IsPositive() && l.PaidAmount.LessThan(l.TotalFee):
		return FeeStatusPartial
	default:
		return FeeStatusPending
	}
}

// NextReceipt advances the per-year receipt counter and returns the formatted number.
func (l *FeeLedger) NextReceipt(now time.Time) string {
	year := now.Year()
	if l.ReceiptYear != year {
		l.ReceiptYear = year
		l.ReceiptSeq = 0
	}
	l.ReceiptSeq++
	return FormatReceiptNumber(year, l.ReceiptSeq)
}

// FormatReceiptNumber renders RCP-{year}-{seq:03d}.
func FormatReceiptNumber(year, seq int) string {
	return fmt.Sprintf("RCP-%d-%03d", year, seq)
}

// FeeStatusSummary is the read model returned by fee status lookups.
type FeeStatusSummary struct {
	StudentID  string          `json:"student_id"`
	TotalFee   decimal.Decimal `json:"total_fee"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Status     FeeStatus       `json:"status"`
	Version    int             `json:"version"`
}

// Summary projects the ledger into its status read model.
func (l FeeLedger) Summary() FeeStatusSummary {
	return FeeStatusSummary{
		StudentID:  l.StudentID,
		TotalFee:   l.TotalFee,
		PaidAmount: l.PaidAmount,
		Remaining:  l.Remaining(),
		DueDate:    l.DueDate,
		Status:     l.Status(),
		Version:    l.Version,
	}
}

// FeePayment is an append-only payment entry.
type FeePayment struct {
	ID            string          `db:"id" json:"id"`
	StudentID     string          `db:"student_id" json:"student_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Method        string          `db:"method" json:"method"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	ReceiptNumber *string         `db:"receipt_number" json:"receipt_number,omitempty"`
	RecordedAt    time.Time       `db:"recorded_at" json:"recorded_at"`
	Status        PaymentStatus   `db:"status" json:"status"`
	RecordedBy    *string         `db:"recorded_by" json:"recorded_by,omitempty"`
}
