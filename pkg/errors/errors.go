package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller is expected to react to them.
type Kind string

// Error kinds. Only KindInfrastructure is eligible for automatic retry.
const (
	KindValidation     Kind = "validation"
	KindStateConflict  Kind = "state_conflict"
	KindCapacity       Kind = "capacity"
	KindConsistency    Kind = "consistency"
	KindInfrastructure Kind = "infrastructure"
	KindAccess         Kind = "access"
	KindInternal       Kind = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the error may be retried automatically.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindInfrastructure
}

// New creates a new Error instance.
func New(code string, kind Kind, status int, message string) *Error {
	return &Error{Code: code, Kind: kind, Status: status, Message: message}
}

// Wrap attaches context to an existing error using the template's code, kind and status.
func Wrap(err error, template *Error, message string) *Error {
	if message == "" {
		message = template.Message
	}
	return &Error{Code: template.Code, Kind: template.Kind, Status: template.Status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", KindAccess, http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", KindAccess, http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", KindAccess, http.StatusUnauthorized, "unauthorized")
	ErrRateLimited  = New("RATE_LIMITED", KindAccess, http.StatusTooManyRequests, "too many requests")
	ErrInternal     = New("INTERNAL_ERROR", KindInternal, http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", KindInternal, http.StatusNotFound, "cache miss")

	ErrValidation    = New("VALIDATION_ERROR", KindValidation, http.StatusBadRequest, "validation failed")
	ErrInvalidAmount = New("INVALID_AMOUNT", KindValidation, http.StatusBadRequest, "amount must be greater than zero")
	ErrNotAbsent     = New("NOT_ABSENT", KindValidation, http.StatusUnprocessableEntity, "attendance record is not an absence")

	ErrConflict             = New("CONFLICT", KindStateConflict, http.StatusConflict, "conflict")
	ErrInvalidTransition    = New("INVALID_TRANSITION", KindStateConflict, http.StatusConflict, "invalid status transition")
	ErrAlreadyProvisioned   = New("ALREADY_PROVISIONED", KindStateConflict, http.StatusConflict, "subscription already provisioned for enrollment")
	ErrAlreadyCompensated   = New("ALREADY_COMPENSATED", KindStateConflict, http.StatusConflict, "absence already has a compensation assignment")
	ErrDuplicateEnrollment  = New("DUPLICATE_ENROLLMENT", KindStateConflict, http.StatusConflict, "an active enrollment already exists for this class")
	ErrDuplicateTransaction = New("DUPLICATE_TRANSACTION", KindStateConflict, http.StatusConflict, "transaction already recorded for student")

	ErrSubscriptionExhausted = New("SUBSCRIPTION_EXHAUSTED", KindCapacity, http.StatusUnprocessableEntity, "subscription class limit reached")
	ErrSubscriptionExpired   = New("SUBSCRIPTION_EXPIRED", KindCapacity, http.StatusUnprocessableEntity, "subscription period has ended")
	ErrSessionFull           = New("SESSION_FULL", KindCapacity, http.StatusUnprocessableEntity, "candidate session is at capacity")

	ErrOverpaymentRejected = New("OVERPAYMENT_REJECTED", KindConsistency, http.StatusUnprocessableEntity, "payment exceeds outstanding balance")
	ErrStaleVersion        = New("STALE_VERSION", KindConsistency, http.StatusConflict, "record was modified concurrently")

	ErrStorageUnavailable = New("STORAGE_UNAVAILABLE", KindInfrastructure, http.StatusServiceUnavailable, "storage unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, "")
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsRetryable reports whether err is an infrastructure failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
