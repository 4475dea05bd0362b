package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
)

// SubscriptionRepository is the in-memory subscription table.
type SubscriptionRepository struct {
	store *Store
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.findOne(ctx, func(s models.Subscription) bool { return s.ID == id })
}

func (r *SubscriptionRepository) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Subscription, error) {
	return r.findOne(ctx, func(s models.Subscription) bool { return s.EnrollmentID == enrollmentID })
}

func (r *SubscriptionRepository) findOne(ctx context.Context, match func(models.Subscription) bool) (*models.Subscription, error) {
	var found *models.Subscription
	err := r.store.view(ctx, func(t *tables) error {
		for _, s := range t.subscriptions {
			if match(s) {
				sub := s
				found = &sub
				return nil
			}
		}
		return sql.ErrNoRows
	})
	return found, err
}

func (r *SubscriptionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Subscription, error) {
	var result []models.Subscription
	err := r.store.view(ctx, func(t *tables) error {
		for _, s := range t.subscriptions {
			if s.StudentID == studentID {
				result = append(result, s)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodStart.After(result[j].PeriodStart) })
	return result, err
}

func (r *SubscriptionRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var result []models.Subscription
	err := r.store.view(ctx, func(t *tables) error {
		for _, s := range t.subscriptions {
			if s.Status != models.SubscriptionStatusExpired && s.PeriodEnd.Before(now) {
				result = append(result, s)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodEnd.Before(result[j].PeriodEnd) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.store.view(ctx, func(t *tables) error {
		for _, existing := range t.subscriptions {
			if existing.EnrollmentID == sub.EnrollmentID {
				return fmt.Errorf("create subscription: %w", repository.ErrUniqueViolation)
			}
		}
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
		sub.UpdatedAt = now
		sub.Version = 1
		t.subscriptions[sub.ID] = *sub
		return nil
	})
}

func (r *SubscriptionRepository) UpdateUsage(ctx context.Context, sub *models.Subscription) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.subscriptions[sub.ID]
		if !ok || stored.Version != sub.Version {
			return fmt.Errorf("update subscription usage: %w", repository.ErrStaleVersion)
		}
		if sub.ClassesAttended < 0 || sub.ClassesAttended > stored.ClassLimit {
			return fmt.Errorf("update subscription usage: classes attended %d outside [0,%d]", sub.ClassesAttended, stored.ClassLimit)
		}
		stored.ClassesAttended = sub.ClassesAttended
		stored.Status = sub.Status
		stored.UpdatedAt = time.Now().UTC()
		stored.Version++
		t.subscriptions[sub.ID] = stored
		sub.UpdatedAt = stored.UpdatedAt
		sub.Version = stored.Version
		return nil
	})
}
