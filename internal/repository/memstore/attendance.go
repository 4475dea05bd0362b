package memstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academy-ledger-api/internal/models"
)

// AttendanceRepository is the append-only in-memory attendance table.
type AttendanceRepository struct {
	store *Store
}

func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	return r.store.view(ctx, func(t *tables) error {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.AttendedAt.IsZero() {
			record.AttendedAt = time.Now().UTC()
		}
		t.attendance[record.ID] = *record
		return nil
	})
}

func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var found *models.AttendanceRecord
	err := r.store.view(ctx, func(t *tables) error {
		rec, ok := t.attendance[id]
		if !ok {
			return sql.ErrNoRows
		}
		found = &rec
		return nil
	})
	return found, err
}

func (r *AttendanceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]models.AttendanceRecord, error) {
	var result []models.AttendanceRecord
	err := r.store.view(ctx, func(t *tables) error {
		for _, rec := range t.attendance {
			if rec.SubscriptionID == subscriptionID {
				result = append(result, rec)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].AttendedAt.Before(result[j].AttendedAt) })
	return result, err
}
