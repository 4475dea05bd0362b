package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ledgerFixture struct {
	store         *memstore.Store
	clock         *fakeClock
	enrollments   *EnrollmentService
	subscriptions *SubscriptionService
	fees          *FeeLedgerService
	compensations *CompensationService
	metrics       *MetricsService
	facade        *LedgerFacade
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memstore.New(time.Second)
	clock := newFakeClock()

	subscriptions := NewSubscriptionService(store.Subscriptions(), store.Attendance(), store, nil)
	enrollments := NewEnrollmentService(store.Enrollments(), subscriptions, store, nil)
	fees := NewFeeLedgerService(store.FeeLedgers(), store, nil)
	compensations := NewCompensationService(store.Compensations(), store.Attendance(), store.Subscriptions(),
		store.Enrollments(), store.Sessions(), subscriptions, store, nil)
	subscriptions.now = clock.Now
	enrollments.now = clock.Now
	fees.now = clock.Now

	metrics := NewMetricsService()
	facade := NewLedgerFacade(FacadeDeps{
		Tx:            store,
		Enrollments:   enrollments,
		Subscriptions: subscriptions,
		Fees:          fees,
		Compensations: compensations,
		Metrics:       metrics,
		Retry:         RetryPolicy{Attempts: 3},
		Defaults:      ProvisionDefaults{PeriodDays: 30, ClassLimit: 8},
	})
	facade.now = clock.Now

	return &ledgerFixture{
		store:         store,
		clock:         clock,
		enrollments:   enrollments,
		subscriptions: subscriptions,
		fees:          fees,
		compensations: compensations,
		metrics:       metrics,
		facade:        facade,
	}
}

// approvedSubscription runs the request and approval flow and returns the new subscription.
func (f *ledgerFixture) approvedSubscription(t *testing.T, studentID, classID string, classLimit int) *models.Subscription {
	t.Helper()
	ctx := context.Background()
	enrollment, err := f.facade.RequestEnrollment(ctx, dto.RequestEnrollmentRequest{StudentID: studentID, ClassID: classID})
	require.NoError(t, err)
	result, err := f.facade.ApproveEnrollmentAndProvision(ctx, enrollment.ID, "admin-1", dto.ApproveEnrollmentRequest{ClassLimit: classLimit})
	require.NoError(t, err)
	require.NotNil(t, result.Subscription)
	return result.Subscription
}

func (f *ledgerFixture) attend(t *testing.T, subscriptionID, sessionID string, present bool) *AttendanceResult {
	t.Helper()
	result, err := f.facade.RecordAttendance(context.Background(), subscriptionID, dto.RecordAttendanceRequest{
		ClassSessionID: sessionID,
		WasPresent:     &present,
	})
	require.NoError(t, err)
	return result
}
