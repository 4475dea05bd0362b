package memstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := New(time.Second)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Enrollments().Create(ctx, &models.Enrollment{ID: "enr-1", StudentID: "stu-1", ClassID: "cls-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Enrollments().FindByID(ctx, "enr-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWithinTxCommitsAndNests(t *testing.T) {
	store := New(time.Second)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Enrollments().Create(ctx, &models.Enrollment{ID: "enr-1", StudentID: "stu-1", ClassID: "cls-1"}); err != nil {
			return err
		}
		return store.WithinTx(ctx, func(ctx context.Context) error {
			return store.Subscriptions().Create(ctx, &models.Subscription{ID: "sub-1", EnrollmentID: "enr-1", ClassLimit: 8})
		})
	})
	require.NoError(t, err)

	enrollment, err := store.Enrollments().FindByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Equal(t, 1, enrollment.Version)

	sub, err := store.Subscriptions().FindByEnrollmentID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
}

func TestWithinTxTimesOutWhileLocked(t *testing.T) {
	store := New(20 * time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = store.WithinTx(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	err := store.WithinTx(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, repository.IsUnavailable(err))
}

func TestVersionedUpdatesRejectStaleCopies(t *testing.T) {
	store := New(time.Second)
	ctx := context.Background()
	subs := store.Subscriptions()

	require.NoError(t, subs.Create(ctx, &models.Subscription{ID: "sub-1", EnrollmentID: "enr-1", ClassLimit: 8, Status: models.SubscriptionStatusActive}))
	first, err := subs.FindByID(ctx, "sub-1")
	require.NoError(t, err)
	second, err := subs.FindByID(ctx, "sub-1")
	require.NoError(t, err)

	first.ClassesAttended = 1
	require.NoError(t, subs.UpdateUsage(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.ClassesAttended = 1
	require.ErrorIs(t, subs.UpdateUsage(ctx, second), repository.ErrStaleVersion)

	stored, err := subs.FindByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ClassesAttended)
}

func TestUniqueConstraints(t *testing.T) {
	store := New(time.Second)
	ctx := context.Background()

	require.NoError(t, store.Enrollments().Create(ctx, &models.Enrollment{StudentID: "stu-1", ClassID: "cls-1"}))
	err := store.Enrollments().Create(ctx, &models.Enrollment{StudentID: "stu-1", ClassID: "cls-1"})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)

	require.NoError(t, store.Compensations().Create(ctx, &models.CompensationAssignment{MissedAttendanceID: "att-1"}))
	err = store.Compensations().Create(ctx, &models.CompensationAssignment{MissedAttendanceID: "att-1"})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)

	payments := store.FeeLedgers()
	require.NoError(t, payments.CreatePayment(ctx, &models.FeePayment{StudentID: "stu-1", TransactionID: "tx-1", Amount: decimal.NewFromInt(10)}))
	err = payments.CreatePayment(ctx, &models.FeePayment{StudentID: "stu-1", TransactionID: "tx-1", Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)
	require.NoError(t, payments.CreatePayment(ctx, &models.FeePayment{StudentID: "stu-2", TransactionID: "tx-1", Amount: decimal.NewFromInt(10)}))
}

func TestSessionCapacityCountsAssignedCompensations(t *testing.T) {
	store := New(time.Second)
	ctx := context.Background()
	sessions := store.Sessions()

	open, err := sessions.HasCapacity(ctx, "unregistered")
	require.NoError(t, err)
	assert.True(t, open)

	store.SetSessionCapacity("sess-1", 1)
	open, err = sessions.HasCapacity(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, open)

	require.NoError(t, store.Compensations().Create(ctx, &models.CompensationAssignment{
		MissedAttendanceID: "att-1",
		AssignedSessionID:  "sess-1",
		Status:             models.CompensationStatusAssigned,
	}))
	open, err = sessions.HasCapacity(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, open)
}
