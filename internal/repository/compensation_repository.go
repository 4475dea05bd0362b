package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-ledger-api/internal/models"
)

const compensationColumns = `id, student_id, missed_attendance_id, missed_class_id, missed_date, reason, assigned_session_id, status,
        cancel_reason, completed_attendance_id, version, created_at, updated_at`

// CompensationRepository persists make-up class assignments.
type CompensationRepository struct {
	db *sqlx.DB
}

// NewCompensationRepository constructs the repository.
func NewCompensationRepository(db *sqlx.DB) *CompensationRepository {
	return &CompensationRepository{db: db}
}

// Create inserts an assignment. A second assignment for the same missed attendance fails with
// ErrUniqueViolation from the database constraint.
func (r *CompensationRepository) Create(ctx context.Context, assignment *models.CompensationAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	assignment.Version = 1
	const query = `INSERT INTO compensation_assignments (id, student_id, missed_attendance_id, missed_class_id, missed_date, reason,
        assigned_session_id, status, cancel_reason, completed_attendance_id, version, created_at, updated_at)
        VALUES (:id, :student_id, :missed_attendance_id, :missed_class_id, :missed_date, :reason,
        :assigned_session_id, :status, :cancel_reason, :completed_attendance_id, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, assignment); err != nil {
		return classify(fmt.Errorf("create compensation assignment: %w", err))
	}
	return nil
}

// FindByID returns an assignment or sql.ErrNoRows.
func (r *CompensationRepository) FindByID(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	return r.findOne(ctx, "id", id)
}

// FindByMissedAttendanceID returns the assignment for an absence or sql.ErrNoRows.
func (r *CompensationRepository) FindByMissedAttendanceID(ctx context.Context, attendanceID string) (*models.CompensationAssignment, error) {
	return r.findOne(ctx, "missed_attendance_id", attendanceID)
}

func (r *CompensationRepository) findOne(ctx context.Context, column, value string) (*models.CompensationAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM compensation_assignments WHERE %s = $1`, compensationColumns, column)
	var assignment models.CompensationAssignment
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &assignment, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find compensation assignment: %w", err))
	}
	return &assignment, nil
}

// List returns assignments filtered by student and status, newest first.
func (r *CompensationRepository) List(ctx context.Context, filter models.CompensationFilter) ([]models.CompensationAssignment, int, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	q := ext(ctx, r.db)
	query := fmt.Sprintf(`SELECT %s FROM compensation_assignments%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, compensationColumns, clause, limit, offset)
	var assignments []models.CompensationAssignment
	if err := sqlx.SelectContext(ctx, q, &assignments, query, args...); err != nil {
		return nil, 0, classify(fmt.Errorf("list compensation assignments: %w", err))
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM compensation_assignments"+clause, args...); err != nil {
		return nil, 0, classify(fmt.Errorf("count compensation assignments: %w", err))
	}
	return assignments, total, nil
}

// UpdateStatus writes the terminal status guarded by the version read earlier.
func (r *CompensationRepository) UpdateStatus(ctx context.Context, assignment *models.CompensationAssignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE compensation_assignments SET status = $3, cancel_reason = $4, completed_attendance_id = $5,
        version = version + 1, updated_at = $6 WHERE id = $1 AND version = $2`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, assignment.ID, assignment.Version, assignment.Status,
		assignment.CancelReason, assignment.CompletedAttendanceID, assignment.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("update compensation assignment: %w", err))
	}
	if err := expectOneRow(res, "update compensation assignment"); err != nil {
		return err
	}
	assignment.Version++
	return nil
}
