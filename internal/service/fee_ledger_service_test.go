package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

func openLedger(t *testing.T, f *ledgerFixture, studentID string, total int64) {
	t.Helper()
	_, err := f.facade.OpenLedger(context.Background(), studentID, dto.FeeLedgerRequest{TotalFee: decimal.NewFromInt(total)})
	require.NoError(t, err)
}

func pay(f *ledgerFixture, studentID string, amount int64, txID string) (*PaymentResult, error) {
	return f.facade.RecordPayment(context.Background(), studentID, "admin-1", dto.RecordPaymentRequest{
		Amount:        decimal.NewFromInt(amount),
		Method:        "bank_transfer",
		TransactionID: txID,
	})
}

func TestFeeLedgerOverpaymentRejectedLeavesLedgerUnchanged(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	openLedger(t, f, "stu-1", 15000)
	_, err := pay(f, "stu-1", 5000, "tx-1")
	require.NoError(t, err)

	_, err = pay(f, "stu-1", 11000, "tx-2")
	require.ErrorIs(t, err, appErrors.ErrOverpaymentRejected)

	status, err := f.facade.GetFeeStatus(ctx, "stu-1")
	require.NoError(t, err)
	assert.True(t, status.PaidAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, models.FeeStatusPartial, status.Status)

	payments, err := f.facade.ListPayments(ctx, "stu-1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestFeeLedgerExactRemainderMarksPaid(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	openLedger(t, f, "stu-1", 15000)
	_, err := pay(f, "stu-1", 5000, "tx-1")
	require.NoError(t, err)

	result, err := pay(f, "stu-1", 10000, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, result.Status.Status)
	assert.True(t, result.Status.PaidAmount.Equal(decimal.NewFromInt(15000)))
	assert.True(t, result.Status.Remaining.IsZero())
	require.NotNil(t, result.Payment.ReceiptNumber)
	assert.Equal(t, fmt.Sprintf("RCP-%d-002", f.clock.Now().Year()), *result.Payment.ReceiptNumber)
	assert.Equal(t, models.PaymentStatusSuccess, result.Payment.Status)
	require.NotNil(t, result.Payment.RecordedBy)
	assert.Equal(t, "admin-1", *result.Payment.RecordedBy)

	status, err := f.fees.GetStatus(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, status.Status)
}

func TestFeeLedgerRejectsNonPositiveAmounts(t *testing.T) {
	f := newLedgerFixture(t)
	openLedger(t, f, "stu-1", 1000)

	for _, amount := range []int64{0, -5} {
		_, err := pay(f, "stu-1", amount, "tx-1")
		require.ErrorIs(t, err, appErrors.ErrInvalidAmount)
	}

	_, err := f.fees.RecordPayment(context.Background(), PaymentInput{StudentID: "stu-1", Amount: decimal.Zero, Method: "cash", TransactionID: "tx-2"})
	require.ErrorIs(t, err, appErrors.ErrInvalidAmount)
}

func TestFeeLedgerDuplicateTransactionRejected(t *testing.T) {
	f := newLedgerFixture(t)
	openLedger(t, f, "stu-1", 1000)
	openLedger(t, f, "stu-2", 1000)

	_, err := pay(f, "stu-1", 100, "tx-1")
	require.NoError(t, err)
	_, err = pay(f, "stu-1", 100, "tx-1")
	require.ErrorIs(t, err, appErrors.ErrDuplicateTransaction)

	_, err = pay(f, "stu-2", 100, "tx-1")
	require.NoError(t, err)

	status, err := f.fees.GetStatus(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, status.PaidAmount.Equal(decimal.NewFromInt(100)))
}

func TestFeeLedgerPendingWithoutPayments(t *testing.T) {
	f := newLedgerFixture(t)
	openLedger(t, f, "stu-1", 1000)

	status, err := f.facade.GetFeeStatus(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPending, status.Status)
	assert.True(t, status.Remaining.Equal(decimal.NewFromInt(1000)))

	_, err = f.facade.GetFeeStatus(context.Background(), "stu-404")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFeeLedgerReceiptsResetPerYear(t *testing.T) {
	f := newLedgerFixture(t)
	openLedger(t, f, "stu-1", 10000)

	f.clock.Set(time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC))
	first, err := pay(f, "stu-1", 100, "tx-1")
	require.NoError(t, err)
	second, err := pay(f, "stu-1", 100, "tx-2")
	require.NoError(t, err)

	f.clock.Set(time.Date(2027, time.January, 1, 8, 0, 0, 0, time.UTC))
	third, err := pay(f, "stu-1", 100, "tx-3")
	require.NoError(t, err)

	assert.Equal(t, "RCP-2026-001", *first.Payment.ReceiptNumber)
	assert.Equal(t, "RCP-2026-002", *second.Payment.ReceiptNumber)
	assert.Equal(t, "RCP-2027-001", *third.Payment.ReceiptNumber)
}

func TestFeeLedgerFailedPaymentKeepsBalanceAndReceipts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	openLedger(t, f, "stu-1", 1000)

	failed, err := f.facade.RecordGatewayPayment(ctx, dto.GatewayPaymentRequest{
		OrderID: "ord-1", PaymentID: "pay-1", StudentID: "stu-1", Amount: decimal.NewFromInt(400), Method: "card", Status: "FAILED",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Payment.Status)
	assert.Nil(t, failed.Payment.ReceiptNumber)
	assert.True(t, failed.Status.PaidAmount.IsZero())

	declined, err := f.facade.RecordGatewayPayment(ctx, dto.GatewayPaymentRequest{
		OrderID: "ord-1", PaymentID: "pay-0", StudentID: "stu-1", Amount: decimal.Zero, Method: "card", Status: "FAILED",
	})
	require.NoError(t, err)
	assert.True(t, declined.Payment.Amount.IsZero())
	assert.Nil(t, declined.Payment.ReceiptNumber)

	_, err = f.facade.RecordGatewayPayment(ctx, dto.GatewayPaymentRequest{
		OrderID: "ord-1", PaymentID: "pay-1", StudentID: "stu-1", Amount: decimal.NewFromInt(400), Method: "card", Status: "SUCCESS",
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicateTransaction)

	ok, err := f.facade.RecordGatewayPayment(ctx, dto.GatewayPaymentRequest{
		OrderID: "ord-1", PaymentID: "pay-2", StudentID: "stu-1", Amount: decimal.NewFromInt(400), Method: "card", Status: "SUCCESS",
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("RCP-%d-001", f.clock.Now().Year()), *ok.Payment.ReceiptNumber)
	assert.Nil(t, ok.Payment.RecordedBy)
}

func TestFeeLedgerOpenAndAdjust(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.facade.OpenLedger(ctx, "stu-1", dto.FeeLedgerRequest{TotalFee: decimal.Zero})
	require.ErrorIs(t, err, appErrors.ErrInvalidAmount)

	openLedger(t, f, "stu-1", 1000)
	_, err = f.facade.OpenLedger(ctx, "stu-1", dto.FeeLedgerRequest{TotalFee: decimal.NewFromInt(2000)})
	require.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = pay(f, "stu-1", 600, "tx-1")
	require.NoError(t, err)

	_, err = f.facade.AdjustTotalFee(ctx, "stu-1", dto.FeeLedgerRequest{TotalFee: decimal.NewFromInt(500)})
	require.ErrorIs(t, err, appErrors.ErrOverpaymentRejected)

	due := f.clock.Now().AddDate(0, 1, 0)
	ledger, err := f.facade.AdjustTotalFee(ctx, "stu-1", dto.FeeLedgerRequest{TotalFee: decimal.NewFromInt(600), DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, ledger.Status())
	require.NotNil(t, ledger.DueDate)

	full, err := f.facade.GetLedger(ctx, "stu-1")
	require.NoError(t, err)
	assert.Len(t, full.Payments, 1)

	payment, err := f.facade.GetPayment(ctx, "stu-1", full.Payments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", payment.TransactionID)

	_, err = f.facade.GetPayment(ctx, "stu-2", full.Payments[0].ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFeeLedgerConcurrentPaymentsKeepReceiptsGapless(t *testing.T) {
	f := newLedgerFixture(t)
	openLedger(t, f, "stu-1", 1000)

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = pay(f, "stu-1", 100, fmt.Sprintf("tx-%02d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, appErrors.ErrOverpaymentRejected)
	}
	assert.Equal(t, 10, succeeded)

	payments, err := f.facade.ListPayments(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, payments, 10)
	year := f.clock.Now().Year()
	for i, p := range payments {
		assert.Equal(t, models.FormatReceiptNumber(year, i+1), *p.ReceiptNumber)
	}

	status, err := f.fees.GetStatus(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, status.Status)
}
