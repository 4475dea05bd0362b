package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

func TestSubscriptionExhaustedRejectsPresentAttendance(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 8)

	var last *AttendanceResult
	for i := 0; i < 8; i++ {
		last = f.attend(t, sub.ID, "sess-1", true)
	}
	assert.Equal(t, 8, last.Subscription.ClassesAttended)
	assert.Equal(t, models.SubscriptionStatusExhausted, last.Subscription.Status)

	present := true
	_, err := f.facade.RecordAttendance(ctx, sub.ID, dto.RecordAttendanceRequest{ClassSessionID: "sess-9", WasPresent: &present})
	require.ErrorIs(t, err, appErrors.ErrSubscriptionExhausted)

	stored, err := f.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.ClassesAttended)

	records, err := f.subscriptions.ListAttendance(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestSubscriptionAbsenceDoesNotConsumeCredit(t *testing.T) {
	f := newLedgerFixture(t)
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 2)

	f.attend(t, sub.ID, "sess-1", true)
	f.attend(t, sub.ID, "sess-2", true)
	result := f.attend(t, sub.ID, "sess-3", false)

	assert.False(t, result.Record.WasPresent)
	assert.Equal(t, 2, result.Subscription.ClassesAttended)
	assert.Equal(t, models.SubscriptionStatusExhausted, result.Subscription.Status)
}

func TestSubscriptionCounterStaysWithinLimit(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 3)

	for i := 0; i < 10; i++ {
		present := i%3 != 0
		_, err := f.facade.RecordAttendance(ctx, sub.ID, dto.RecordAttendanceRequest{ClassSessionID: "sess", WasPresent: &present})
		if err != nil {
			require.ErrorIs(t, err, appErrors.ErrSubscriptionExhausted)
		}
		stored, err := f.subscriptions.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stored.ClassesAttended, 0)
		assert.LessOrEqual(t, stored.ClassesAttended, stored.ClassLimit)
	}
}

func TestSubscriptionExpiredRejectsAttendance(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 8)

	f.clock.Set(sub.PeriodEnd)
	f.attend(t, sub.ID, "sess-1", true)

	f.clock.Advance(time.Second)
	for _, present := range []bool{true, false} {
		present := present
		_, err := f.facade.RecordAttendance(ctx, sub.ID, dto.RecordAttendanceRequest{ClassSessionID: "sess-2", WasPresent: &present})
		require.ErrorIs(t, err, appErrors.ErrSubscriptionExpired)
	}

	stored, err := f.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, stored.Status)
	assert.Equal(t, 1, stored.ClassesAttended)
}

func TestSubscriptionExpiryTakesPrecedenceOverExhaustion(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 1)
	f.attend(t, sub.ID, "sess-1", true)

	f.clock.Set(sub.PeriodEnd.Add(time.Hour))
	present := true
	_, err := f.facade.RecordAttendance(ctx, sub.ID, dto.RecordAttendanceRequest{ClassSessionID: "sess-2", WasPresent: &present})
	require.ErrorIs(t, err, appErrors.ErrSubscriptionExpired)
}

func TestSubscriptionProvisionValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	approved := models.Enrollment{ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusApproved}

	_, err := f.subscriptions.Provision(ctx, approved, 0, 8)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.subscriptions.Provision(ctx, approved, 30, 0)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	pending := approved
	pending.Status = models.EnrollmentStatusPending
	_, err = f.subscriptions.Provision(ctx, pending, 30, 8)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = f.subscriptions.Provision(ctx, approved, 30, 8)
	require.NoError(t, err)
	_, err = f.subscriptions.Provision(ctx, approved, 30, 8)
	require.ErrorIs(t, err, appErrors.ErrAlreadyProvisioned)
}

func TestSubscriptionExpireDueMaterializesStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	first := f.approvedSubscription(t, "stu-1", "cls-1", 8)
	f.clock.Advance(10 * 24 * time.Hour)
	second := f.approvedSubscription(t, "stu-2", "cls-1", 8)

	now := first.PeriodEnd.Add(time.Minute)
	count, err := f.subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := f.store.Subscriptions().FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, expired.Status)

	active, err := f.store.Subscriptions().FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, active.Status)

	count, err = f.subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubscriptionListByStudentReportsEffectiveStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	sub := f.approvedSubscription(t, "stu-1", "cls-1", 8)

	f.clock.Set(sub.PeriodEnd.Add(time.Hour))
	subs, err := f.facade.ListSubscriptions(ctx, "stu-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubscriptionStatusExpired, subs[0].Status)

	_, err = f.facade.ListAttendance(ctx, "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
