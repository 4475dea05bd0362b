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

const enrollmentColumns = `id, student_id, class_id, status, created_at, decided_at, admin_notes, decided_by, version, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"decided_at": "decided_at",
		"status":     "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, clause, orderBy, order, limit, offset)

	q := ext(ctx, r.db)
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, q, &enrollments, query, args...); err != nil {
		return nil, 0, classify(fmt.Errorf("list enrollments: %w", err))
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM enrollments"+clause, args...); err != nil {
		return nil, 0, classify(fmt.Errorf("count enrollments: %w", err))
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find enrollment: %w", err))
	}
	return &enrollment, nil
}

// ExistsActive checks whether a PENDING or APPROVED enrollment exists for the student and class.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &exists, query, studentID, classID, models.EnrollmentStatusPending, models.EnrollmentStatusApproved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify(fmt.Errorf("check active enrollment: %w", err))
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	enrollment.Version = 1
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_id, status, created_at, decided_at, admin_notes, decided_by, version, updated_at)
        VALUES (:id, :student_id, :class_id, :status, :created_at, :decided_at, :admin_notes, :decided_by, :version, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, enrollment); err != nil {
		return classify(fmt.Errorf("create enrollment: %w", err))
	}
	return nil
}

// UpdateDecision writes the decided status when the stored version still equals
// enrollment.Version, then bumps the in-memory version.
func (r *EnrollmentRepository) UpdateDecision(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = $3, decided_at = $4, admin_notes = $5, decided_by = $6, version = version + 1, updated_at = $7
        WHERE id = $1 AND version = $2`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, enrollment.ID, enrollment.Version, enrollment.Status,
		enrollment.DecidedAt, enrollment.AdminNotes, enrollment.DecidedBy, enrollment.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("update enrollment decision: %w", err))
	}
	if err := expectOneRow(res, "update enrollment decision"); err != nil {
		return err
	}
	enrollment.Version++
	return nil
}
