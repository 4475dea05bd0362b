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

// CompensationRepository is the in-memory assignment table, unique on missed attendance.
type CompensationRepository struct {
	store *Store
}

func (r *CompensationRepository) Create(ctx context.Context, assignment *models.CompensationAssignment) error {
	return r.store.view(ctx, func(t *tables) error {
		for _, existing := range t.compensations {
			if existing.MissedAttendanceID == assignment.MissedAttendanceID {
				return fmt.Errorf("create compensation assignment: %w", repository.ErrUniqueViolation)
			}
		}
		if assignment.ID == "" {
			assignment.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		if assignment.CreatedAt.IsZero() {
			assignment.CreatedAt = now
		}
		assignment.UpdatedAt = now
		assignment.Version = 1
		t.compensations[assignment.ID] = *assignment
		return nil
	})
}

func (r *CompensationRepository) FindByID(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	return r.findOne(ctx, func(a models.CompensationAssignment) bool { return a.ID == id })
}

func (r *CompensationRepository) FindByMissedAttendanceID(ctx context.Context, attendanceID string) (*models.CompensationAssignment, error) {
	return r.findOne(ctx, func(a models.CompensationAssignment) bool { return a.MissedAttendanceID == attendanceID })
}

func (r *CompensationRepository) findOne(ctx context.Context, match func(models.CompensationAssignment) bool) (*models.CompensationAssignment, error) {
	var found *models.CompensationAssignment
	err := r.store.view(ctx, func(t *tables) error {
		for _, a := range t.compensations {
			if match(a) {
				assignment := a
				found = &assignment
				return nil
			}
		}
		return sql.ErrNoRows
	})
	return found, err
}

func (r *CompensationRepository) List(ctx context.Context, filter models.CompensationFilter) ([]models.CompensationAssignment, int, error) {
	var result []models.CompensationAssignment
	err := r.store.view(ctx, func(t *tables) error {
		for _, a := range t.compensations {
			if filter.StudentID != "" && a.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && a.Status != filter.Status {
				continue
			}
			result = append(result, a)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return pageSlice(result, filter.Page, filter.PageSize), len(result), nil
}

func (r *CompensationRepository) UpdateStatus(ctx context.Context, assignment *models.CompensationAssignment) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.compensations[assignment.ID]
		if !ok || stored.Version != assignment.Version {
			return fmt.Errorf("update compensation assignment: %w", repository.ErrStaleVersion)
		}
		stored.Status = assignment.Status
		stored.CancelReason = assignment.CancelReason
		stored.CompletedAttendanceID = assignment.CompletedAttendanceID
		stored.UpdatedAt = time.Now().UTC()
		stored.Version++
		t.compensations[assignment.ID] = stored
		assignment.UpdatedAt = stored.UpdatedAt
		assignment.Version = stored.Version
		return nil
	})
}

// SessionCapacity answers seat checks from registered capacities. Unregistered sessions have no
// cap.
type SessionCapacity struct {
	store *Store
}

func (c *SessionCapacity) HasCapacity(ctx context.Context, sessionID string) (bool, error) {
	c.store.capMu.RLock()
	capacity, registered := c.store.capacities[sessionID]
	c.store.capMu.RUnlock()
	if !registered {
		return true, nil
	}
	taken := 0
	err := c.store.view(ctx, func(t *tables) error {
		for _, a := range t.compensations {
			if a.AssignedSessionID == sessionID && a.Status == models.CompensationStatusAssigned {
				taken++
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return capacity-taken > 0, nil
}
