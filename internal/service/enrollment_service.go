package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, studentID, classID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateDecision(ctx context.Context, enrollment *models.Enrollment) error
}

// Provisioner creates the subscription that an approval spawns.
type Provisioner interface {
	Provision(ctx context.Context, enrollment models.Enrollment, periodDays, classLimit int) (*models.Subscription, error)
}

// DecisionInput is an admin verdict on a pending enrollment.
type DecisionInput struct {
	EnrollmentID string
	Decision     models.EnrollmentDecision
	Notes        *string
	Actor        string
	PeriodDays   int
	ClassLimit   int
}

// DecisionResult carries the decided enrollment and, on approval, its new subscription.
type DecisionResult struct {
	Enrollment   *models.Enrollment   `json:"enrollment"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// EnrollmentService owns the enrollment approval state machine.
type EnrollmentService struct {
	repo        enrollmentRepository
	provisioner Provisioner
	tx          Transactor
	logger      *zap.Logger
	now         Clock
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, provisioner Provisioner, tx Transactor, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, provisioner: provisioner, tx: tx, logger: logger, now: systemClock}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "", "failed to list enrollments")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	return enrollment, nil
}

// Request creates a PENDING enrollment unless an active one exists for the same class.
func (s *EnrollmentService) Request(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusPending}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsActive(ctx, studentID, classID)
		if err != nil {
			return storeError(err, "", "failed to check active enrollments")
		}
		if exists {
			return appErrors.ErrDuplicateEnrollment
		}
		enrollment.CreatedAt = s.now()
		if err := s.repo.Create(ctx, enrollment); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return appErrors.Wrap(err, appErrors.ErrDuplicateEnrollment, "")
			}
			return storeError(err, "", "failed to create enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to request enrollment")
	}
	s.logger.Info("enrollment requested", zap.String("enrollment_id", enrollment.ID), zap.String("student_id", studentID), zap.String("class_id", classID))
	return enrollment, nil
}

// Decide applies an admin decision to a PENDING enrollment. Approval provisions the
// subscription in the same transaction, so a provisioning failure leaves the enrollment PENDING.
func (s *EnrollmentService) Decide(ctx context.Context, in DecisionInput) (*DecisionResult, error) {
	var status models.EnrollmentStatus
	switch in.Decision {
	case models.DecisionApprove:
		status = models.EnrollmentStatusApproved
	case models.DecisionReject:
		status = models.EnrollmentStatusRejected
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVE or REJECT")
	}

	result := &DecisionResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		enrollment, err := s.transition(ctx, in.EnrollmentID, status, in.Notes, in.Actor)
		if err != nil {
			return err
		}
		result.Enrollment = enrollment
		if status != models.EnrollmentStatusApproved {
			return nil
		}
		if s.provisioner == nil {
			return appErrors.Clone(appErrors.ErrInternal, "subscription provisioning unavailable")
		}
		sub, err := s.provisioner.Provision(ctx, *enrollment, in.PeriodDays, in.ClassLimit)
		if err != nil {
			return err
		}
		result.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to decide enrollment")
	}
	s.logger.Info("enrollment decided", zap.String("enrollment_id", in.EnrollmentID), zap.String("status", string(status)), zap.String("actor", in.Actor))
	return result, nil
}

// Cancel withdraws a PENDING enrollment.
func (s *EnrollmentService) Cancel(ctx context.Context, id, actor string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		enrollment, err = s.transition(ctx, id, models.EnrollmentStatusCancelled, nil, actor)
		return err
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to cancel enrollment")
	}
	s.logger.Info("enrollment cancelled", zap.String("enrollment_id", id), zap.String("actor", actor))
	return enrollment, nil
}

func (s *EnrollmentService) transition(ctx context.Context, id string, status models.EnrollmentStatus, notes *string, actor string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment is "+string(enrollment.Status)+", not PENDING")
	}
	decidedAt := s.now()
	enrollment.Status = status
	enrollment.DecidedAt = &decidedAt
	if notes != nil {
		enrollment.AdminNotes = notes
	}
	if actor != "" {
		enrollment.DecidedBy = &actor
	}
	if err := s.repo.UpdateDecision(ctx, enrollment); err != nil {
		return nil, storeError(err, "enrollment not found", "failed to update enrollment")
	}
	return enrollment, nil
}
