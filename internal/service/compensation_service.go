package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

type compensationRepository interface {
	Create(ctx context.Context, assignment *models.CompensationAssignment) error
	FindByID(ctx context.Context, id string) (*models.CompensationAssignment, error)
	FindByMissedAttendanceID(ctx context.Context, attendanceID string) (*models.CompensationAssignment, error)
	List(ctx context.Context, filter models.CompensationFilter) ([]models.CompensationAssignment, int, error)
	UpdateStatus(ctx context.Context, assignment *models.CompensationAssignment) error
}

type attendanceReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
}

type subscriptionReader interface {
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// SessionCapacity is the class-session subsystem's seat check.
type SessionCapacity interface {
	HasCapacity(ctx context.Context, sessionID string) (bool, error)
}

// AttendanceRecorder applies attendance under the subscription rules.
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, in AttendanceInput) (*AttendanceResult, error)
}

// AssignInput requests a make-up session for an absence.
type AssignInput struct {
	MissedAttendanceID string
	CandidateSessionID string
	Reason             string
}

// CompensationService owns the missed-class to make-up-class workflow.
type CompensationService struct {
	repo          compensationRepository
	attendance    attendanceReader
	subscriptions subscriptionReader
	enrollments   enrollmentReader
	sessions      SessionCapacity
	recorder      AttendanceRecorder
	tx            Transactor
	logger        *zap.Logger
}

// NewCompensationService constructs CompensationService.
func NewCompensationService(
	repo compensationRepository,
	attendance attendanceReader,
	subscriptions subscriptionReader,
	enrollments enrollmentReader,
	sessions SessionCapacity,
	recorder AttendanceRecorder,
	tx Transactor,
	logger *zap.Logger,
) *CompensationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensationService{
		repo:          repo,
		attendance:    attendance,
		subscriptions: subscriptions,
		enrollments:   enrollments,
		sessions:      sessions,
		recorder:      recorder,
		tx:            tx,
		logger:        logger,
	}
}

// Assign creates the single make-up assignment allowed for an absence.
func (s *CompensationService) Assign(ctx context.Context, in AssignInput) (*models.CompensationAssignment, error) {
	if strings.TrimSpace(in.MissedAttendanceID) == "" || strings.TrimSpace(in.CandidateSessionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missed attendance and candidate session are required")
	}

	var assignment *models.CompensationAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		missed, err := s.attendance.FindByID(ctx, in.MissedAttendanceID)
		if err != nil {
			return storeError(err, "attendance record not found", "failed to load attendance record")
		}
		if missed.WasPresent {
			return appErrors.ErrNotAbsent
		}
		_, err = s.repo.FindByMissedAttendanceID(ctx, missed.ID)
		switch {
		case err == nil:
			return appErrors.ErrAlreadyCompensated
		case !errors.Is(err, sql.ErrNoRows):
			return storeError(err, "", "failed to check existing compensation")
		}

		sub, err := s.subscriptions.FindByID(ctx, missed.SubscriptionID)
		if err != nil {
			return storeError(err, "subscription not found", "failed to load subscription")
		}
		enrollment, err := s.enrollments.FindByID(ctx, sub.EnrollmentID)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}

		open, err := s.sessions.HasCapacity(ctx, in.CandidateSessionID)
		if err != nil {
			return storeError(err, "class session not found", "failed to check session capacity")
		}
		if !open {
			return appErrors.ErrSessionFull
		}

		assignment = &models.CompensationAssignment{
			StudentID:          sub.StudentID,
			MissedAttendanceID: missed.ID,
			MissedClassID:      enrollment.ClassID,
			MissedDate:         missed.AttendedAt,
			Reason:             in.Reason,
			AssignedSessionID:  in.CandidateSessionID,
			Status:             models.CompensationStatusAssigned,
		}
		if err := s.repo.Create(ctx, assignment); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return appErrors.Wrap(err, appErrors.ErrAlreadyCompensated, "")
			}
			return storeError(err, "", "failed to create compensation assignment")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to assign compensation")
	}
	s.logger.Info("compensation assigned",
		zap.String("assignment_id", assignment.ID),
		zap.String("missed_attendance_id", assignment.MissedAttendanceID),
		zap.String("session_id", assignment.AssignedSessionID),
	)
	return assignment, nil
}

// Complete marks an assignment COMPLETED after recording the make-up session as a present
// attendance against the original subscription.
func (s *CompensationService) Complete(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	var assignment *models.CompensationAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		assignment, err = s.loadAssigned(ctx, id)
		if err != nil {
			return err
		}
		missed, err := s.attendance.FindByID(ctx, assignment.MissedAttendanceID)
		if err != nil {
			return storeError(err, "attendance record not found", "failed to load attendance record")
		}
		attended, err := s.recorder.RecordAttendance(ctx, AttendanceInput{
			SubscriptionID: missed.SubscriptionID,
			ClassSessionID: assignment.AssignedSessionID,
			WasPresent:     true,
			CompensationID: &assignment.ID,
		})
		if err != nil {
			return err
		}
		assignment.Status = models.CompensationStatusCompleted
		assignment.CompletedAttendanceID = &attended.Record.ID
		return storeError(s.repo.UpdateStatus(ctx, assignment), "compensation assignment not found", "failed to update compensation assignment")
	})
	if err != nil {
		return nil, storeError(err, "compensation assignment not found", "failed to complete compensation")
	}
	s.logger.Info("compensation completed", zap.String("assignment_id", id))
	return assignment, nil
}

// Cancel withdraws an outstanding assignment. Attendance counts are not affected.
func (s *CompensationService) Cancel(ctx context.Context, id, reason string) (*models.CompensationAssignment, error) {
	var assignment *models.CompensationAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		assignment, err = s.loadAssigned(ctx, id)
		if err != nil {
			return err
		}
		assignment.Status = models.CompensationStatusCancelled
		if reason != "" {
			assignment.CancelReason = &reason
		}
		return storeError(s.repo.UpdateStatus(ctx, assignment), "compensation assignment not found", "failed to update compensation assignment")
	})
	if err != nil {
		return nil, storeError(err, "compensation assignment not found", "failed to cancel compensation")
	}
	s.logger.Info("compensation cancelled", zap.String("assignment_id", id))
	return assignment, nil
}

func (s *CompensationService) loadAssigned(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "compensation assignment not found", "failed to load compensation assignment")
	}
	if assignment.Status != models.CompensationStatusAssigned {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "compensation is "+string(assignment.Status)+", not ASSIGNED")
	}
	return assignment, nil
}

// Get returns an assignment by ID.
func (s *CompensationService) Get(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "compensation assignment not found", "failed to load compensation assignment")
	}
	return assignment, nil
}

// List returns assignments with pagination metadata.
func (s *CompensationService) List(ctx context.Context, filter models.CompensationFilter) ([]models.CompensationAssignment, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "", "failed to list compensation assignments")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
