// Package memstore is the in-memory EntityStore driver used for local runs and service tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
)

type tables struct {
	enrollments   map[string]models.Enrollment
	subscriptions map[string]models.Subscription
	attendance    map[string]models.AttendanceRecord
	ledgers       map[string]models.FeeLedger
	payments      []models.FeePayment
	compensations map[string]models.CompensationAssignment
}

func newTables() *tables {
	return &tables{
		enrollments:   make(map[string]models.Enrollment),
		subscriptions: make(map[string]models.Subscription),
		attendance:    make(map[string]models.AttendanceRecord),
		ledgers:       make(map[string]models.FeeLedger),
		compensations: make(map[string]models.CompensationAssignment),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range t.attendance {
		c.attendance[k] = v
	}
	for k, v := range t.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range t.compensations {
		c.compensations[k] = v
	}
	c.payments = append([]models.FeePayment(nil), t.payments...)
	return c
}

type txKey struct{}

// Store keeps every table in memory. Transactions are serialized and work on a private copy
// that replaces the committed tables only when the unit of work succeeds.
type Store struct {
	sem     chan struct{}
	data    *tables
	timeout time.Duration

	capMu      sync.RWMutex
	capacities map[string]int
}

// New creates an empty store. timeout bounds how long a caller waits for the store lock.
func New(timeout time.Duration) *Store {
	return &Store{
		sem:        make(chan struct{}, 1),
		data:       newTables(),
		timeout:    timeout,
		capacities: make(map[string]int),
	}
}

// WithinTx runs fn against a snapshot and commits it when fn returns nil. Nested calls join
// the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*tables); ok {
		return fn(ctx)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, snapshot)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w: %w", repository.ErrUnavailable, err)
	}
	s.data = snapshot
	return nil
}

// view runs fn against the transaction snapshot on ctx, or against the committed tables under
// the store lock.
func (s *Store) view(ctx context.Context, fn func(t *tables) error) error {
	if t, ok := ctx.Value(txKey{}).(*tables); ok {
		return fn(t)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(s.data)
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire store: %w: %w", repository.ErrUnavailable, ctx.Err())
	}
}

func (s *Store) release() {
	<-s.sem
}

// SetSessionCapacity registers the seat count of a class session.
func (s *Store) SetSessionCapacity(sessionID string, capacity int) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	s.capacities[sessionID] = capacity
}

// Enrollments returns the enrollment repository.
func (s *Store) Enrollments() *EnrollmentRepository { return &EnrollmentRepository{store: s} }

// Subscriptions returns the subscription repository.
func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{store: s} }

// Attendance returns the attendance repository.
func (s *Store) Attendance() *AttendanceRepository { return &AttendanceRepository{store: s} }

// FeeLedgers returns the fee ledger repository.
func (s *Store) FeeLedgers() *FeeLedgerRepository { return &FeeLedgerRepository{store: s} }

// Compensations returns the compensation repository.
func (s *Store) Compensations() *CompensationRepository { return &CompensationRepository{store: s} }

// Sessions returns the session capacity hook.
func (s *Store) Sessions() *SessionCapacity { return &SessionCapacity{store: s} }

func pageSlice[T any](items []T, page, size int) []T {
	page, size = models.NormalizePage(page, size)
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
