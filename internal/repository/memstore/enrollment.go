package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
)

// EnrollmentRepository is the in-memory enrollment table.
type EnrollmentRepository struct {
	store *Store
}

func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var result []models.Enrollment
	err := r.store.view(ctx, func(t *tables) error {
		for _, e := range t.enrollments {
			if filter.StudentID != "" && e.StudentID != filter.StudentID {
				continue
			}
			if filter.ClassID != "" && e.ClassID != filter.ClassID {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			result = append(result, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	asc := strings.EqualFold(filter.SortOrder, "ASC")
	sort.Slice(result, func(i, j int) bool {
		if asc {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return pageSlice(result, filter.Page, filter.PageSize), len(result), nil
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var found *models.Enrollment
	err := r.store.view(ctx, func(t *tables) error {
		e, ok := t.enrollments[id]
		if !ok {
			return sql.ErrNoRows
		}
		found = &e
		return nil
	})
	return found, err
}

func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	var exists bool
	err := r.store.view(ctx, func(t *tables) error {
		exists = activeEnrollment(t, studentID, classID, "")
		return nil
	})
	return exists, err
}

func activeEnrollment(t *tables, studentID, classID, excludeID string) bool {
	for _, e := range t.enrollments {
		if e.ID != excludeID && e.StudentID == studentID && e.ClassID == classID && e.Status.IsActive() {
			return true
		}
	}
	return false
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return r.store.view(ctx, func(t *tables) error {
		if enrollment.ID == "" {
			enrollment.ID = uuid.NewString()
		}
		if enrollment.Status == "" {
			enrollment.Status = models.EnrollmentStatusPending
		}
		if enrollment.Status.IsActive() && activeEnrollment(t, enrollment.StudentID, enrollment.ClassID, "") {
			return fmt.Errorf("create enrollment: %w", repository.ErrUniqueViolation)
		}
		now := time.Now().UTC()
		if enrollment.CreatedAt.IsZero() {
			enrollment.CreatedAt = now
		}
		enrollment.UpdatedAt = now
		enrollment.Version = 1
		t.enrollments[enrollment.ID] = *enrollment
		return nil
	})
}

func (r *EnrollmentRepository) UpdateDecision(ctx context.Context, enrollment *models.Enrollment) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.enrollments[enrollment.ID]
		if !ok || stored.Version != enrollment.Version {
			return fmt.Errorf("update enrollment decision: %w", repository.ErrStaleVersion)
		}
		enrollment.UpdatedAt = time.Now().UTC()
		enrollment.Version++
		t.enrollments[enrollment.ID] = *enrollment
		return nil
	})
}
