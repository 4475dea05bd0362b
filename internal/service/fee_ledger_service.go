package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

type feeLedgerRepository interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.FeeLedger, error)
	Create(ctx context.Context, ledger *models.FeeLedger) error
	Update(ctx context.Context, ledger *models.FeeLedger) error
	CreatePayment(ctx context.Context, payment *models.FeePayment) error
	ExistsTransaction(ctx context.Context, studentID, transactionID string) (bool, error)
	ListPayments(ctx context.Context, studentID string) ([]models.FeePayment, error)
	FindPayment(ctx context.Context, studentID, paymentID string) (*models.FeePayment, error)
}

// PaymentInput describes a payment against a student's ledger.
type PaymentInput struct {
	StudentID     string
	Amount        decimal.Decimal
	Method        string
	TransactionID string
	RecordedBy    *string
}

// PaymentResult is the appended payment and the ledger status after it.
type PaymentResult struct {
	Payment *models.FeePayment      `json:"payment"`
	Status  models.FeeStatusSummary `json:"status"`
}

// FeeLedgerService owns fee totals, payment history and receipt numbering.
type FeeLedgerService struct {
	repo   feeLedgerRepository
	tx     Transactor
	logger *zap.Logger
	now    Clock
}

// NewFeeLedgerService constructs FeeLedgerService.
func NewFeeLedgerService(repo feeLedgerRepository, tx Transactor, logger *zap.Logger) *FeeLedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeLedgerService{repo: repo, tx: tx, logger: logger, now: systemClock}
}

// OpenLedger assesses the total fee for a student that has no ledger yet.
func (s *FeeLedgerService) OpenLedger(ctx context.Context, studentID string, totalFee decimal.Decimal, dueDate *time.Time) (*models.FeeLedger, error) {
	if !totalFee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "total fee must be greater than zero")
	}
	ledger := &models.FeeLedger{StudentID: studentID, TotalFee: totalFee.Round(2), PaidAmount: decimal.Zero, DueDate: dueDate}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.FindByStudentID(ctx, studentID)
		switch {
		case err == nil:
			return appErrors.Clone(appErrors.ErrConflict, "fee ledger already exists for student")
		case !errors.Is(err, sql.ErrNoRows):
			return storeError(err, "", "failed to load fee ledger")
		}
		if err := s.repo.Create(ctx, ledger); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return appErrors.Wrap(err, appErrors.ErrConflict, "fee ledger already exists for student")
			}
			return storeError(err, "", "failed to create fee ledger")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to open fee ledger")
	}
	s.logger.Info("fee ledger opened", zap.String("student_id", studentID), zap.String("total_fee", ledger.TotalFee.StringFixed(2)))
	return ledger, nil
}

// AdjustTotalFee changes the assessed total. It never drops below what was already paid.
func (s *FeeLedgerService) AdjustTotalFee(ctx context.Context, studentID string, totalFee decimal.Decimal, dueDate *time.Time) (*models.FeeLedger, error) {
	if !totalFee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "total fee must be greater than zero")
	}
	var ledger *models.FeeLedger
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ledger, err = s.repo.FindByStudentID(ctx, studentID)
		if err != nil {
			return storeError(err, "fee ledger not found", "failed to load fee ledger")
		}
		if totalFee.LessThan(ledger.PaidAmount) {
			return appErrors.Clone(appErrors.ErrOverpaymentRejected, "total fee cannot be lower than the amount already paid")
		}
		ledger.TotalFee = totalFee.Round(2)
		if dueDate != nil {
			ledger.DueDate = dueDate
		}
		return storeError(s.repo.Update(ctx, ledger), "fee ledger not found", "failed to update fee ledger")
	})
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to adjust fee ledger")
	}
	return ledger, nil
}

// RecordPayment appends a successful payment, increments the paid amount and assigns the next
// receipt number of the calendar year. The ledger write is versioned, so concurrent payments
// cannot reuse a receipt number.
func (s *FeeLedgerService) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, appErrors.ErrInvalidAmount
	}
	if err := validatePaymentInput(in); err != nil {
		return nil, err
	}

	result := &PaymentResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ledger, err := s.loadForPayment(ctx, in)
		if err != nil {
			return err
		}
		amount := in.Amount.Round(2)
		if ledger.PaidAmount.Add(amount).GreaterThan(ledger.TotalFee) {
			return appErrors.Clone(appErrors.ErrOverpaymentRejected,
				"payment of "+amount.StringFixed(2)+" exceeds remaining balance "+ledger.Remaining().StringFixed(2))
		}

		now := s.now()
		receipt := ledger.NextReceipt(now)
		ledger.PaidAmount = ledger.PaidAmount.Add(amount)
		if err := s.repo.Update(ctx, ledger); err != nil {
			return storeError(err, "fee ledger not found", "failed to update fee ledger")
		}
		payment := &models.FeePayment{
			StudentID:     in.StudentID,
			Amount:        amount,
			Method:        in.Method,
			TransactionID: in.TransactionID,
			ReceiptNumber: &receipt,
			RecordedAt:    now,
			Status:        models.PaymentStatusSuccess,
			RecordedBy:    in.RecordedBy,
		}
		if err := s.createPayment(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment
		result.Status = ledger.Summary()
		return nil
	})
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to record payment")
	}
	s.logger.Info("payment recorded",
		zap.String("student_id", in.StudentID),
		zap.String("transaction_id", in.TransactionID),
		zap.String("receipt_number", *result.Payment.ReceiptNumber),
		zap.String("status", string(result.Status.Status)),
	)
	return result, nil
}

// RecordFailedPayment appends a FAILED attempt. Balances and receipt numbers are untouched but
// the transaction id is still consumed.
func (s *FeeLedgerService) RecordFailedPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if in.Amount.IsNegative() {
		return nil, appErrors.ErrInvalidAmount
	}
	if err := validatePaymentInput(in); err != nil {
		return nil, err
	}
	result := &PaymentResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ledger, err := s.loadForPayment(ctx, in)
		if err != nil {
			return err
		}
		payment := &models.FeePayment{
			StudentID:     in.StudentID,
			Amount:        in.Amount.Round(2),
			Method:        in.Method,
			TransactionID: in.TransactionID,
			RecordedAt:    s.now(),
			Status:        models.PaymentStatusFailed,
			RecordedBy:    in.RecordedBy,
		}
		if err := s.createPayment(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment
		result.Status = ledger.Summary()
		return nil
	})
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to record failed payment")
	}
	s.logger.Warn("failed payment recorded", zap.String("student_id", in.StudentID), zap.String("transaction_id", in.TransactionID))
	return result, nil
}

func validatePaymentInput(in PaymentInput) error {
	if strings.TrimSpace(in.StudentID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if strings.TrimSpace(in.TransactionID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "transaction_id is required")
	}
	if strings.TrimSpace(in.Method) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "method is required")
	}
	return nil
}

func (s *FeeLedgerService) loadForPayment(ctx context.Context, in PaymentInput) (*models.FeeLedger, error) {
	ledger, err := s.repo.FindByStudentID(ctx, in.StudentID)
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to load fee ledger")
	}
	duplicate, err := s.repo.ExistsTransaction(ctx, in.StudentID, in.TransactionID)
	if err != nil {
		return nil, storeError(err, "", "failed to check transaction")
	}
	if duplicate {
		return nil, appErrors.ErrDuplicateTransaction
	}
	return ledger, nil
}

func (s *FeeLedgerService) createPayment(ctx context.Context, payment *models.FeePayment) error {
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return appErrors.Wrap(err, appErrors.ErrDuplicateTransaction, "")
		}
		return storeError(err, "", "failed to store payment")
	}
	return nil
}

// GetStatus returns the derived fee status without side effects.
func (s *FeeLedgerService) GetStatus(ctx context.Context, studentID string) (*models.FeeStatusSummary, error) {
	ledger, err := s.repo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to load fee ledger")
	}
	summary := ledger.Summary()
	return &summary, nil
}

// GetLedger returns the ledger with its payment history.
func (s *FeeLedgerService) GetLedger(ctx context.Context, studentID string) (*models.FeeLedger, error) {
	ledger, err := s.repo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to load fee ledger")
	}
	payments, err := s.repo.ListPayments(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "", "failed to list payments")
	}
	ledger.Payments = payments
	return ledger, nil
}

// ListPayments returns a student's payment history in recording order.
func (s *FeeLedgerService) ListPayments(ctx context.Context, studentID string) ([]models.FeePayment, error) {
	if _, err := s.repo.FindByStudentID(ctx, studentID); err != nil {
		return nil, storeError(err, "fee ledger not found", "failed to load fee ledger")
	}
	payments, err := s.repo.ListPayments(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "", "failed to list payments")
	}
	return payments, nil
}

// GetPayment returns one payment of a student.
func (s *FeeLedgerService) GetPayment(ctx context.Context, studentID, paymentID string) (*models.FeePayment, error) {
	payment, err := s.repo.FindPayment(ctx, studentID, paymentID)
	if err != nil {
		return nil, storeError(err, "payment not found", "failed to load payment")
	}
	return payment, nil
}
