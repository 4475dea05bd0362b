package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
	"github.com/noah-isme/academy-ledger-api/pkg/middleware/requestid"
)

// RetryPolicy bounds automatic retries of infrastructure failures. Attempts counts every try,
// the first one included.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// ProvisionDefaults apply when an approval does not specify the subscription shape.
type ProvisionDefaults struct {
	PeriodDays int
	ClassLimit int
}

// FacadeDeps wires the services behind LedgerFacade.
type FacadeDeps struct {
	Tx            Transactor
	Enrollments   *EnrollmentService
	Subscriptions *SubscriptionService
	Fees          *FeeLedgerService
	Compensations *CompensationService
	Cache         *CacheService
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Retry         RetryPolicy
	Defaults      ProvisionDefaults
}

// LedgerFacade is the single entry point of the student lifecycle ledger. Every mutation runs
// in one store transaction; only infrastructure failures are retried.
type LedgerFacade struct {
	tx            Transactor
	enrollments   *EnrollmentService
	subscriptions *SubscriptionService
	fees          *FeeLedgerService
	compensations *CompensationService
	cache         *CacheService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	retry         RetryPolicy
	defaults      ProvisionDefaults
	sleep         func(ctx context.Context, d time.Duration) error
	now           Clock
}

// NewLedgerFacade constructs LedgerFacade.
func NewLedgerFacade(deps FacadeDeps) *LedgerFacade {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Retry.Attempts < 1 {
		deps.Retry.Attempts = 1
	}
	if deps.Retry.MaxBackoff < deps.Retry.Backoff {
		deps.Retry.MaxBackoff = deps.Retry.Backoff
	}
	if deps.Defaults.PeriodDays < 1 {
		deps.Defaults.PeriodDays = 30
	}
	if deps.Defaults.ClassLimit < 1 {
		deps.Defaults.ClassLimit = 8
	}
	return &LedgerFacade{
		tx:            deps.Tx,
		enrollments:   deps.Enrollments,
		subscriptions: deps.Subscriptions,
		fees:          deps.Fees,
		compensations: deps.Compensations,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		validator:     deps.Validator,
		logger:        deps.Logger,
		retry:         deps.Retry,
		defaults:      deps.Defaults,
		sleep:         sleepContext,
		now:           systemClock,
	}
}

// RequestEnrollment creates a PENDING enrollment.
func (f *LedgerFacade) RequestEnrollment(ctx context.Context, req dto.RequestEnrollmentRequest) (*models.Enrollment, error) {
	if err := f.validate(req, "invalid enrollment payload"); err != nil {
		return nil, err
	}
	var enrollment *models.Enrollment
	err := f.execute(ctx, "request_enrollment", func(ctx context.Context) error {
		var err error
		enrollment, err = f.enrollments.Request(ctx, req.StudentID, req.ClassID)
		return err
	})
	return enrollment, err
}

// ApproveEnrollmentAndProvision approves a PENDING enrollment and provisions its subscription
// as one unit. A provisioning failure leaves the enrollment PENDING.
func (f *LedgerFacade) ApproveEnrollmentAndProvision(ctx context.Context, enrollmentID, actor string, req dto.ApproveEnrollmentRequest) (*DecisionResult, error) {
	if err := requireID(enrollmentID, "enrollment id"); err != nil {
		return nil, err
	}
	if err := f.validate(req, "invalid approval payload"); err != nil {
		return nil, err
	}
	in := DecisionInput{
		EnrollmentID: enrollmentID,
		Decision:     models.DecisionApprove,
		Notes:        req.AdminNotes,
		Actor:        actor,
		PeriodDays:   positiveOr(req.PeriodDays, f.defaults.PeriodDays),
		ClassLimit:   positiveOr(req.ClassLimit, f.defaults.ClassLimit),
	}
	var result *DecisionResult
	err := f.execute(ctx, "approve_enrollment", func(ctx context.Context) error {
		var err error
		result, err = f.enrollments.Decide(ctx, in)
		return err
	})
	return result, err
}

// RejectEnrollment rejects a PENDING enrollment.
func (f *LedgerFacade) RejectEnrollment(ctx context.Context, enrollmentID, actor string, req dto.RejectEnrollmentRequest) (*models.Enrollment, error) {
	if err := requireID(enrollmentID, "enrollment id"); err != nil {
		return nil, err
	}
	if err := f.validate(req, "invalid rejection payload"); err != nil {
		return nil, err
	}
	var result *DecisionResult
	err := f.execute(ctx, "reject_enrollment", func(ctx context.Context) error {
		var err error
		result, err = f.enrollments.Decide(ctx, DecisionInput{
			EnrollmentID: enrollmentID,
			Decision:     models.DecisionReject,
			Notes:        req.AdminNotes,
			Actor:        actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Enrollment, nil
}

// CancelEnrollment withdraws a PENDING enrollment.
func (f *LedgerFacade) CancelEnrollment(ctx context.Context, enrollmentID, actor string) (*models.Enrollment, error) {
	if err := requireID(enrollmentID, "enrollment id"); err != nil {
		return nil, err
	}
	var enrollment *models.Enrollment
	err := f.execute(ctx, "cancel_enrollment", func(ctx context.Context) error {
		var err error
		enrollment, err = f.enrollments.Cancel(ctx, enrollmentID, actor)
		return err
	})
	return enrollment, err
}

// GetEnrollment returns an enrollment.
func (f *LedgerFacade) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := f.query(ctx, "get_enrollment", func(ctx context.Context) error {
		var err error
		enrollment, err = f.enrollments.Get(ctx, id)
		return err
	})
	return enrollment, err
}

// ListEnrollments lists enrollments.
func (f *LedgerFacade) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	var (
		enrollments []models.Enrollment
		pagination  *models.Pagination
	)
	err := f.query(ctx, "list_enrollments", func(ctx context.Context) error {
		var err error
		enrollments, pagination, err = f.enrollments.List(ctx, filter)
		return err
	})
	return enrollments, pagination, err
}

// RecordAttendance appends an attendance record to a subscription.
func (f *LedgerFacade) RecordAttendance(ctx context.Context, subscriptionID string, req dto.RecordAttendanceRequest) (*AttendanceResult, error) {
	if err := requireID(subscriptionID, "subscription id"); err != nil {
		return nil, err
	}
	if err := f.validate(req, "invalid attendance payload"); err != nil {
		return nil, err
	}
	var result *AttendanceResult
	err := f.execute(ctx, "record_attendance", func(ctx context.Context) error {
		var err error
		result, err = f.subscriptions.RecordAttendance(ctx, AttendanceInput{
			SubscriptionID: subscriptionID,
			ClassSessionID: req.ClassSessionID,
			WasPresent:     *req.WasPresent,
		})
		return err
	})
	return result, err
}

// GetSubscription returns a subscription with its effective status.
func (f *LedgerFacade) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := f.query(ctx, "get_subscription", func(ctx context.Context) error {
		var err error
		sub, err = f.subscriptions.Get(ctx, id)
		return err
	})
	return sub, err
}

// ListSubscriptions returns a student's subscriptions.
func (f *LedgerFacade) ListSubscriptions(ctx context.Context, studentID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := f.query(ctx, "list_subscriptions", func(ctx context.Context) error {
		var err error
		subs, err = f.subscriptions.ListByStudent(ctx, studentID)
		return err
	})
	return subs, err
}

// ListAttendance returns the attendance history of a subscription.
func (f *LedgerFacade) ListAttendance(ctx context.Context, subscriptionID string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := f.query(ctx, "list_attendance", func(ctx context.Context) error {
		var err error
		records, err = f.subscriptions.ListAttendance(ctx, subscriptionID)
		return err
	})
	return records, err
}

// ExpireSubscriptions materializes EXPIRED for subscriptions past their period.
func (f *LedgerFacade) ExpireSubscriptions(ctx context.Context) (int, error) {
	start := time.Now()
	count, err := f.subscriptions.ExpireDue(ctx, f.now())
	f.metrics.ObserveLedgerOperation("expire_subscriptions", err, time.Since(start))
	return count, err
}

// OpenLedger assesses a student's total fee.
func (f *LedgerFacade) OpenLedger(ctx context.Context, studentID string, req dto.FeeLedgerRequest) (*models.FeeLedger, error) {
	if err := requireID(studentID, "student id"); err != nil {
		return nil, err
	}
	var ledger *models.FeeLedger
	err := f.execute(ctx, "open_ledger", func(ctx context.Context) error {
		var err error
		ledger, err = f.fees.OpenLedger(ctx, studentID, req.TotalFee, req.DueDate)
		return err
	})
	if err == nil {
		f.cacheFeeStatus(ctx, ledger.Summary())
	}
	return ledger, err
}

// AdjustTotalFee changes a student's assessed total.
func (f *LedgerFacade) AdjustTotalFee(ctx context.Context, studentID string, req dto.FeeLedgerRequest) (*models.FeeLedger, error) {
	if err := requireID(studentID, "student id"); err != nil {
		return nil, err
	}
	var ledger *models.FeeLedger
	err := f.execute(ctx, "adjust_total_fee", func(ctx context.Context) error {
		var err error
		ledger, err = f.fees.AdjustTotalFee(ctx, studentID, req.TotalFee, req.DueDate)
		return err
	})
	if err == nil {
		f.cacheFeeStatus(ctx, ledger.Summary())
	}
	return ledger, err
}

// RecordPayment records an admin-entered payment.
func (f *LedgerFacade) RecordPayment(ctx context.Context, studentID, actor string, req dto.RecordPaymentRequest) (*PaymentResult, error) {
	if err := requireID(studentID, "student id"); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.ErrInvalidAmount
	}
	if err := f.validate(req, "invalid payment payload"); err != nil {
		return nil, err
	}
	in := PaymentInput{StudentID: studentID, Amount: req.Amount, Method: req.Method, TransactionID: req.TransactionID}
	if actor != "" {
		in.RecordedBy = &actor
	}
	return f.recordPayment(ctx, "record_payment", in, true)
}

// RecordGatewayPayment records a verified gateway callback. The gateway payment id is the
// idempotency key; FAILED callbacks are kept in the history without touching balances.
func (f *LedgerFacade) RecordGatewayPayment(ctx context.Context, req dto.GatewayPaymentRequest) (*PaymentResult, error) {
	succeeded := req.Status == string(models.PaymentStatusSuccess)
	if succeeded && !req.Amount.IsPositive() {
		return nil, appErrors.ErrInvalidAmount
	}
	if err := f.validate(req, "invalid gateway payload"); err != nil {
		return nil, err
	}
	in := PaymentInput{StudentID: req.StudentID, Amount: req.Amount, Method: req.Method, TransactionID: req.PaymentID}
	return f.recordPayment(ctx, "record_gateway_payment", in, succeeded)
}

func (f *LedgerFacade) recordPayment(ctx context.Context, op string, in PaymentInput, succeeded bool) (*PaymentResult, error) {
	var result *PaymentResult
	err := f.execute(ctx, op, func(ctx context.Context) error {
		var err error
		if succeeded {
			result, err = f.fees.RecordPayment(ctx, in)
		} else {
			result, err = f.fees.RecordFailedPayment(ctx, in)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	f.cacheFeeStatus(ctx, result.Status)
	if succeeded {
		amount, _ := result.Payment.Amount.Float64()
		f.metrics.AddPaymentAmount(amount)
	}
	return result, nil
}

// GetFeeStatus returns the derived fee status, served from the read cache when enabled.
func (f *LedgerFacade) GetFeeStatus(ctx context.Context, studentID string) (*models.FeeStatusSummary, error) {
	key := feeStatusCacheKey(studentID)
	var cached models.FeeStatusSummary
	if f.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	var summary *models.FeeStatusSummary
	err := f.query(ctx, "get_fee_status", func(ctx context.Context) error {
		var err error
		summary, err = f.fees.GetStatus(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	f.cacheFeeStatus(ctx, *summary)
	return summary, nil
}

// cacheFeeStatus publishes a status read model. Entries are keyed by ledger version so a read that
// started before a write cannot put the older totals back.
func (f *LedgerFacade) cacheFeeStatus(ctx context.Context, summary models.FeeStatusSummary) {
	f.cache.Store(ctx, feeStatusCacheKey(summary.StudentID), summary.Version, summary)
}

// GetLedger returns the ledger with its payment history.
func (f *LedgerFacade) GetLedger(ctx context.Context, studentID string) (*models.FeeLedger, error) {
	var ledger *models.FeeLedger
	err := f.query(ctx, "get_ledger", func(ctx context.Context) error {
		var err error
		ledger, err = f.fees.GetLedger(ctx, studentID)
		return err
	})
	return ledger, err
}

// ListPayments returns a student's payment history.
func (f *LedgerFacade) ListPayments(ctx context.Context, studentID string) ([]models.FeePayment, error) {
	var payments []models.FeePayment
	err := f.query(ctx, "list_payments", func(ctx context.Context) error {
		var err error
		payments, err = f.fees.ListPayments(ctx, studentID)
		return err
	})
	return payments, err
}

// GetPayment returns one payment of a student.
func (f *LedgerFacade) GetPayment(ctx context.Context, studentID, paymentID string) (*models.FeePayment, error) {
	var payment *models.FeePayment
	err := f.query(ctx, "get_payment", func(ctx context.Context) error {
		var err error
		payment, err = f.fees.GetPayment(ctx, studentID, paymentID)
		return err
	})
	return payment, err
}

// AssignCompensation schedules a make-up session for an absence.
func (f *LedgerFacade) AssignCompensation(ctx context.Context, req dto.AssignCompensationRequest) (*models.CompensationAssignment, error) {
	if err := f.validate(req, "invalid compensation payload"); err != nil {
		return nil, err
	}
	var assignment *models.CompensationAssignment
	err := f.execute(ctx, "assign_compensation", func(ctx context.Context) error {
		var err error
		assignment, err = f.compensations.Assign(ctx, AssignInput{
			MissedAttendanceID: req.MissedAttendanceID,
			CandidateSessionID: req.CandidateSessionID,
			Reason:             req.Reason,
		})
		return err
	})
	return assignment, err
}

// CompleteCompensation records the make-up attendance and closes the assignment.
func (f *LedgerFacade) CompleteCompensation(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	if err := requireID(id, "compensation id"); err != nil {
		return nil, err
	}
	var assignment *models.CompensationAssignment
	err := f.execute(ctx, "complete_compensation", func(ctx context.Context) error {
		var err error
		assignment, err = f.compensations.Complete(ctx, id)
		return err
	})
	return assignment, err
}

// CancelCompensation withdraws an outstanding assignment.
func (f *LedgerFacade) CancelCompensation(ctx context.Context, id string, req dto.CancelCompensationRequest) (*models.CompensationAssignment, error) {
	if err := requireID(id, "compensation id"); err != nil {
		return nil, err
	}
	if err := f.validate(req, "invalid cancellation payload"); err != nil {
		return nil, err
	}
	var assignment *models.CompensationAssignment
	err := f.execute(ctx, "cancel_compensation", func(ctx context.Context) error {
		var err error
		assignment, err = f.compensations.Cancel(ctx, id, req.Reason)
		return err
	})
	return assignment, err
}

// GetCompensation returns an assignment.
func (f *LedgerFacade) GetCompensation(ctx context.Context, id string) (*models.CompensationAssignment, error) {
	var assignment *models.CompensationAssignment
	err := f.query(ctx, "get_compensation", func(ctx context.Context) error {
		var err error
		assignment, err = f.compensations.Get(ctx, id)
		return err
	})
	return assignment, err
}

// ListCompensations lists assignments.
func (f *LedgerFacade) ListCompensations(ctx context.Context, filter models.CompensationFilter) ([]models.CompensationAssignment, *models.Pagination, error) {
	var (
		assignments []models.CompensationAssignment
		pagination  *models.Pagination
	)
	err := f.query(ctx, "list_compensations", func(ctx context.Context) error {
		var err error
		assignments, pagination, err = f.compensations.List(ctx, filter)
		return err
	})
	return assignments, pagination, err
}

// execute runs fn in one transaction with retries.
func (f *LedgerFacade) execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return f.withRetry(ctx, op, func(ctx context.Context) error {
		return f.tx.WithinTx(ctx, fn)
	})
}

// query runs a read with retries but without a transaction.
func (f *LedgerFacade) query(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return f.withRetry(ctx, op, fn)
}

func (f *LedgerFacade) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error
	for attempt := 1; ; attempt++ {
		err = storeError(fn(ctx), "", "failed to "+strings.ReplaceAll(op, "_", " "))
		if err == nil || !appErrors.IsRetryable(err) || attempt >= f.retry.Attempts {
			break
		}
		delay := f.backoff(attempt)
		f.metrics.RecordRetry(op)
		f.logger.Warn("retrying ledger operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err),
		)
		if waitErr := f.sleep(ctx, delay); waitErr != nil {
			break
		}
	}
	f.metrics.ObserveLedgerOperation(op, err, time.Since(start))
	if err != nil {
		f.logFailure(ctx, op, err)
	}
	return err
}

func (f *LedgerFacade) logFailure(ctx context.Context, op string, err error) {
	appErr := appErrors.FromError(err)
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("code", appErr.Code),
		zap.String("request_id", requestid.FromContext(ctx)),
	}
	switch appErr.Kind {
	case appErrors.KindInfrastructure, appErrors.KindInternal:
		f.logger.Error("ledger operation failed", append(fields, zap.Error(err))...)
	default:
		f.logger.Info("ledger operation rejected", append(fields, zap.String("reason", appErr.Message))...)
	}
}

// backoff doubles the base delay per attempt up to the cap and adds up to 20% jitter.
func (f *LedgerFacade) backoff(attempt int) time.Duration {
	delay := f.retry.Backoff
	for i := 1; i < attempt && delay < f.retry.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > f.retry.MaxBackoff {
		delay = f.retry.MaxBackoff
	}
	if delay <= 0 {
		return 0
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/5+1))
}

func (f *LedgerFacade) validate(req interface{}, message string) error {
	if err := f.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, message)
	}
	return nil
}

func requireID(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, name+" is required")
	}
	return nil
}

func positiveOr(value, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
