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

const subscriptionColumns = `id, student_id, enrollment_id, period_start, period_end, class_limit, classes_attended, status, version, created_at, updated_at`

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindByID returns a subscription or sql.ErrNoRows.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEnrollmentID returns the subscription provisioned for an enrollment or sql.ErrNoRows.
func (r *SubscriptionRepository) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Subscription, error) {
	return r.findOne(ctx, "enrollment_id", enrollmentID)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, column, value string) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE %s = $1`, subscriptionColumns, column)
	var sub models.Subscription
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &sub, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find subscription: %w", err))
	}
	return &sub, nil
}

// ListByStudent returns a student's subscriptions, newest period first.
func (r *SubscriptionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE student_id = $1 ORDER BY period_start DESC`
	var subs []models.Subscription
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &subs, query, studentID); err != nil {
		return nil, classify(fmt.Errorf("list student subscriptions: %w", err))
	}
	return subs, nil
}

// ListExpirable returns subscriptions whose period ended before now but are not yet EXPIRED.
func (r *SubscriptionRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status <> $1 AND period_end < $2 ORDER BY period_end ASC LIMIT $3`
	var subs []models.Subscription
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &subs, query, models.SubscriptionStatusExpired, now, limit); err != nil {
		return nil, classify(fmt.Errorf("list expirable subscriptions: %w", err))
	}
	return subs, nil
}

// Create persists a new subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Version = 1
	const query = `INSERT INTO subscriptions (id, student_id, enrollment_id, period_start, period_end, class_limit, classes_attended, status, version, created_at, updated_at)
        VALUES (:id, :student_id, :enrollment_id, :period_start, :period_end, :class_limit, :classes_attended, :status, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, sub); err != nil {
		return classify(fmt.Errorf("create subscription: %w", err))
	}
	return nil
}

// UpdateUsage writes the attendance counter and status guarded by the version read earlier.
func (r *SubscriptionRepository) UpdateUsage(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subscriptions SET classes_attended = $3, status = $4, version = version + 1, updated_at = $5
        WHERE id = $1 AND version = $2`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, sub.ID, sub.Version, sub.ClassesAttended, sub.Status, sub.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("update subscription usage: %w", err))
	}
	if err := expectOneRow(res, "update subscription usage"); err != nil {
		return err
	}
	sub.Version++
	return nil
}
