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

const attendanceColumns = `id, subscription_id, class_session_id, attended_at, was_present, compensation_id`

// AttendanceRepository appends and reads attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create appends an attendance record.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.AttendedAt.IsZero() {
		record.AttendedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, subscription_id, class_session_id, attended_at, was_present, compensation_id)
        VALUES (:id, :subscription_id, :class_session_id, :attended_at, :was_present, :compensation_id)`
	if _, err := sqlx.NamedExecContext(ctx, ext(ctx, r.db), query, record); err != nil {
		return classify(fmt.Errorf("create attendance record: %w", err))
	}
	return nil
}

// FindByID returns an attendance record or sql.ErrNoRows.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find attendance record: %w", err))
	}
	return &record, nil
}

// ListBySubscription returns records for a subscription in chronological order.
func (r *AttendanceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE subscription_id = $1 ORDER BY attended_at ASC`
	var records []models.AttendanceRecord
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &records, query, subscriptionID); err != nil {
		return nil, classify(fmt.Errorf("list attendance records: %w", err))
	}
	return records, nil
}
