package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

const expiryBatchSize = 100

type subscriptionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
	FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Subscription, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Subscription, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	UpdateUsage(ctx context.Context, sub *models.Subscription) error
}

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]models.AttendanceRecord, error)
}

// AttendanceInput records one class session against a subscription.
type AttendanceInput struct {
	SubscriptionID string
	ClassSessionID string
	WasPresent     bool
	CompensationID *string
}

// AttendanceResult is the appended record and the subscription after it was applied.
type AttendanceResult struct {
	Record       *models.AttendanceRecord `json:"record"`
	Subscription *models.Subscription     `json:"subscription"`
}

// SubscriptionService owns subscription periods, class limits and attendance consumption.
type SubscriptionService struct {
	repo       subscriptionRepository
	attendance attendanceRepository
	tx         Transactor
	logger     *zap.Logger
	now        Clock
}

// NewSubscriptionService constructs SubscriptionService.
func NewSubscriptionService(repo subscriptionRepository, attendance attendanceRepository, tx Transactor, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{repo: repo, attendance: attendance, tx: tx, logger: logger, now: systemClock}
}

// Provision creates the ACTIVE subscription for an approved enrollment.
func (s *SubscriptionService) Provision(ctx context.Context, enrollment models.Enrollment, periodDays, classLimit int) (*models.Subscription, error) {
	if periodDays < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period length must be at least one day")
	}
	if classLimit < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class limit must be at least one")
	}
	if enrollment.Status != models.EnrollmentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only approved enrollments can be provisioned")
	}

	start := s.now()
	sub := &models.Subscription{
		StudentID:    enrollment.StudentID,
		EnrollmentID: enrollment.ID,
		PeriodStart:  start,
		PeriodEnd:    start.AddDate(0, 0, periodDays),
		ClassLimit:   classLimit,
		Status:       models.SubscriptionStatusActive,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.FindByEnrollmentID(ctx, enrollment.ID)
		switch {
		case err == nil:
			return appErrors.ErrAlreadyProvisioned
		case !errors.Is(err, sql.ErrNoRows):
			return storeError(err, "", "failed to check subscription")
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return appErrors.Wrap(err, appErrors.ErrAlreadyProvisioned, "")
			}
			return storeError(err, "", "failed to create subscription")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to provision subscription")
	}
	s.logger.Info("subscription provisioned", zap.String("subscription_id", sub.ID), zap.String("enrollment_id", enrollment.ID), zap.Int("class_limit", classLimit))
	return sub, nil
}

// Get returns a subscription with its effective status.
func (s *SubscriptionService) Get(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "subscription not found", "failed to load subscription")
	}
	sub.Status = sub.EffectiveStatus(s.now())
	return sub, nil
}

// ListByStudent returns the student's subscriptions with effective statuses.
func (s *SubscriptionService) ListByStudent(ctx context.Context, studentID string) ([]models.Subscription, error) {
	subs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "", "failed to list subscriptions")
	}
	now := s.now()
	for i := range subs {
		subs[i].Status = subs[i].EffectiveStatus(now)
	}
	return subs, nil
}

// ListAttendance returns the attendance history of a subscription.
func (s *SubscriptionService) ListAttendance(ctx context.Context, subscriptionID string) ([]models.AttendanceRecord, error) {
	if _, err := s.repo.FindByID(ctx, subscriptionID); err != nil {
		return nil, storeError(err, "subscription not found", "failed to load subscription")
	}
	records, err := s.attendance.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, storeError(err, "", "failed to list attendance")
	}
	return records, nil
}

// RecordAttendance appends an attendance record. Expiry is checked before the class limit;
// absences never touch the counter.
func (s *SubscriptionService) RecordAttendance(ctx context.Context, in AttendanceInput) (*AttendanceResult, error) {
	if in.SubscriptionID == "" || in.ClassSessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subscription and class session are required")
	}

	result := &AttendanceResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.repo.FindByID(ctx, in.SubscriptionID)
		if err != nil {
			return storeError(err, "subscription not found", "failed to load subscription")
		}
		now := s.now()
		if sub.ExpiredAt(now) {
			return appErrors.ErrSubscriptionExpired
		}
		if in.WasPresent && sub.Exhausted() {
			return appErrors.ErrSubscriptionExhausted
		}

		if in.WasPresent {
			sub.ClassesAttended++
			if sub.Exhausted() {
				sub.Status = models.SubscriptionStatusExhausted
			}
			if err := s.repo.UpdateUsage(ctx, sub); err != nil {
				return storeError(err, "subscription not found", "failed to update subscription usage")
			}
		}

		record := &models.AttendanceRecord{
			SubscriptionID: sub.ID,
			ClassSessionID: in.ClassSessionID,
			AttendedAt:     now,
			WasPresent:     in.WasPresent,
			CompensationID: in.CompensationID,
		}
		if err := s.attendance.Create(ctx, record); err != nil {
			return storeError(err, "", "failed to record attendance")
		}
		sub.Status = sub.EffectiveStatus(now)
		result.Record = record
		result.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, storeError(err, "subscription not found", "failed to record attendance")
	}
	return result, nil
}

// ExpireDue stores EXPIRED on every subscription whose period ended before now. Each row is
// written in its own transaction; rows changed concurrently are left for the next run.
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		batch, err := s.repo.ListExpirable(ctx, now, expiryBatchSize)
		if err != nil {
			return expired, storeError(err, "", "failed to list expirable subscriptions")
		}
		progress := 0
		for i := range batch {
			sub := batch[i]
			err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
				sub.Status = models.SubscriptionStatusExpired
				return s.repo.UpdateUsage(ctx, &sub)
			})
			switch {
			case err == nil:
				progress++
			case errors.Is(err, repository.ErrStaleVersion):
				s.logger.Debug("subscription changed during expiry sweep", zap.String("subscription_id", sub.ID))
			default:
				return expired + progress, storeError(err, "", "failed to expire subscription")
			}
		}
		expired += progress
		if len(batch) < expiryBatchSize || progress == 0 {
			break
		}
	}
	if expired > 0 {
		s.logger.Info("subscriptions expired", zap.Int("count", expired))
	}
	return expired, nil
}
