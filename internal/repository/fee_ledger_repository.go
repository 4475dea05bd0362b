package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-ledger-api/internal/models"
)

const (
	ledgerColumns  = `student_id, total_fee, paid_amount, due_date, receipt_year, receipt_seq, version, created_at, updated_at`
	paymentColumns = `id, student_id, amount, method, transaction_id, receipt_number, recorded_at, status, recorded_by`
)

// FeeLedgerRepository persists fee ledgers and their payment history.
type FeeLedgerRepository struct {
	db *sqlx.DB
}

// NewFeeLedgerRepository constructs the repository.
func NewFeeLedgerRepository(db *sqlx.DB) *FeeLedgerRepository {
	return &FeeLedgerRepository{db: db}
}

// FindByStudentID returns the ledger for a student or sql.ErrNoRows. Payments are not loaded.
func (r *FeeLedgerRepository) FindByStudentID(ctx context.Context, studentID string) (*models.FeeLedger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM fee_ledgers WHERE student_id = $1`
	var ledger models.FeeLedger
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &ledger, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find fee ledger: %w", err))
	}
	return &ledger, nil
}

// Create opens a ledger for a student.
func (r *FeeLedgerRepository) Create(ctx context.Context, ledger *models.FeeLedger) error {
	now := time.Now().UTC()
	if ledger.CreatedAt.IsZero() {
		ledger.CreatedAt = now
	}
	ledger.UpdatedAt = now
	ledger.Version = 1
	const query = `INSERT INTO fee_ledgers (student_id, total_fee, paid_amount, due_date, receipt_year, receipt_seq, version, created_at, updated_at)
        VALUES (:student_id, :total_fee, :paid_amount, :due_date, :receipt_year, :receipt_seq, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, ledger); err != nil {
		return classify(fmt.Errorf("create fee ledger: %w", err))
	}
	return nil
}

// Update writes totals and the receipt counter guarded by the version read earlier.
func (r *FeeLedgerRepository) Update(ctx context.Context, ledger *models.FeeLedger) error {
	ledger.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fee_ledgers SET total_fee = $3, paid_amount = $4, due_date = $5, receipt_year = $6, receipt_seq = $7,
        version = version + 1, updated_at = $8 WHERE student_id = $1 AND version = $2`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, ledger.StudentID, ledger.Version, ledger.TotalFee, ledger.PaidAmount,
		ledger.DueDate, ledger.ReceiptYear, ledger.ReceiptSeq, ledger.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("update fee ledger: %w", err))
	}
	if err := expectOneRow(res, "update fee ledger"); err != nil {
		return err
	}
	ledger.Version++
	return nil
}

// CreatePayment appends a payment entry.
func (r *FeeLedgerRepository) CreatePayment(ctx context.Context, payment *models.FeePayment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.RecordedAt.IsZero() {
		payment.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fee_payments (id, student_id, amount, method, transaction_id, receipt_number, recorded_at, status, recorded_by)
        VALUES (:id, :student_id, :amount, :method, :transaction_id, :receipt_number, :recorded_at, :status, :recorded_by)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, payment); err != nil {
		return classify(fmt.Errorf("create fee payment: %w", err))
	}
	return nil
}

// ExistsTransaction reports whether the external transaction id was already recorded for the student.
func (r *FeeLedgerRepository) ExistsTransaction(ctx context.Context, studentID, transactionID string) (bool, error) {
	const query = `SELECT 1 FROM fee_payments WHERE student_id = $1 AND transaction_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &exists, query, studentID, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify(fmt.Errorf("check fee transaction: %w", err))
	}
	return true, nil
}

// ListPayments returns the payment history for a student in recording order.
func (r *FeeLedgerRepository) ListPayments(ctx context.Context, studentID string) ([]models.FeePayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM fee_payments WHERE student_id = $1 ORDER BY recorded_at ASC, receipt_number ASC`
	var payments []models.FeePayment
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &payments, query, studentID); err != nil {
		return nil, classify(fmt.Errorf("list fee payments: %w", err))
	}
	return payments, nil
}

// FindPayment returns a single payment of the student or sql.ErrNoRows.
func (r *FeeLedgerRepository) FindPayment(ctx context.Context, studentID, paymentID string) (*models.FeePayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM fee_payments WHERE student_id = $1 AND id = $2`
	var payment models.FeePayment
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &payment, query, studentID, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find fee payment: %w", err))
	}
	return &payment, nil
}
