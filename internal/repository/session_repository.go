package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-ledger-api/internal/models"
)

// SessionCapacityRepository reads seat availability from the class-session subsystem's table.
// The ledger never writes class_sessions; outstanding make-up assignments count as taken seats.
type SessionCapacityRepository struct {
	db *sqlx.DB
}

// NewSessionCapacityRepository constructs the repository.
func NewSessionCapacityRepository(db *sqlx.DB) *SessionCapacityRepository {
	return &SessionCapacityRepository{db: db}
}

// HasCapacity reports whether the session can take one more student. Unknown sessions return
// sql.ErrNoRows.
func (r *SessionCapacityRepository) HasCapacity(ctx context.Context, sessionID string) (bool, error) {
	const query = `SELECT cs.capacity - cs.booked - (
            SELECT COUNT(*) FROM compensation_assignments ca
            WHERE ca.assigned_session_id = cs.id AND ca.status = $2
        ) AS remaining
        FROM class_sessions cs WHERE cs.id = $1`
	var remaining int
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &remaining, query, sessionID, models.CompensationStatusAssigned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, err
		}
		return false, classify(fmt.Errorf("check session capacity: %w", err))
	}
	return remaining > 0, nil
}
