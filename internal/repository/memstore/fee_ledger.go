package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
)

// FeeLedgerRepository is the in-memory ledger and payment history.
type FeeLedgerRepository struct {
	store *Store
}

func (r *FeeLedgerRepository) FindByStudentID(ctx context.Context, studentID string) (*models.FeeLedger, error) {
	var found *models.FeeLedger
	err := r.store.view(ctx, func(t *tables) error {
		l, ok := t.ledgers[studentID]
		if !ok {
			return sql.ErrNoRows
		}
		found = &l
		return nil
	})
	return found, err
}

func (r *FeeLedgerRepository) Create(ctx context.Context, ledger *models.FeeLedger) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.ledgers[ledger.StudentID]; ok {
			return fmt.Errorf("create fee ledger: %w", repository.ErrUniqueViolation)
		}
		now := time.Now().UTC()
		if ledger.CreatedAt.IsZero() {
			ledger.CreatedAt = now
		}
		ledger.UpdatedAt = now
		ledger.Version = 1
		stored := *ledger
		stored.Payments = nil
		t.ledgers[ledger.StudentID] = stored
		return nil
	})
}

func (r *FeeLedgerRepository) Update(ctx context.Context, ledger *models.FeeLedger) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.ledgers[ledger.StudentID]
		if !ok || stored.Version != ledger.Version {
			return fmt.Errorf("update fee ledger: %w", repository.ErrStaleVersion)
		}
		if ledger.PaidAmount.IsNegative() || ledger.PaidAmount.GreaterThan(ledger.TotalFee) {
			return fmt.Errorf("update fee ledger: paid %s outside [0,%s]", ledger.PaidAmount, ledger.TotalFee)
		}
		ledger.UpdatedAt = time.Now().UTC()
		ledger.Version++
		next := *ledger
		next.Payments = nil
		t.ledgers[ledger.StudentID] = next
		return nil
	})
}

func (r *FeeLedgerRepository) CreatePayment(ctx context.Context, payment *models.FeePayment) error {
	return r.store.view(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentID != payment.StudentID {
				continue
			}
			if p.TransactionID == payment.TransactionID {
				return fmt.Errorf("create fee payment: transaction: %w", repository.ErrUniqueViolation)
			}
			if p.ReceiptNumber != nil && payment.ReceiptNumber != nil && *p.ReceiptNumber == *payment.ReceiptNumber {
				return fmt.Errorf("create fee payment: receipt: %w", repository.ErrUniqueViolation)
			}
		}
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		if payment.RecordedAt.IsZero() {
			payment.RecordedAt = time.Now().UTC()
		}
		t.payments = append(t.payments, *payment)
		return nil
	})
}

func (r *FeeLedgerRepository) ExistsTransaction(ctx context.Context, studentID, transactionID string) (bool, error) {
	var exists bool
	err := r.store.view(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentID == studentID && p.TransactionID == transactionID {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

// ListPayments returns payments in insertion order, which is recording order.
func (r *FeeLedgerRepository) ListPayments(ctx context.Context, studentID string) ([]models.FeePayment, error) {
	var result []models.FeePayment
	err := r.store.view(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentID == studentID {
				result = append(result, p)
			}
		}
		return nil
	})
	return result, err
}

func (r *FeeLedgerRepository) FindPayment(ctx context.Context, studentID, paymentID string) (*models.FeePayment, error) {
	var found *models.FeePayment
	err := r.store.view(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentID == studentID && p.ID == paymentID {
				payment := p
				found = &payment
				return nil
			}
		}
		return sql.ErrNoRows
	})
	return found, err
}
