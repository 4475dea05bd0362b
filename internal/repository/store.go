package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Sentinel errors returned by every store driver.
var (
	// ErrStaleVersion signals that a versioned update matched no row.
	ErrStaleVersion = errors.New("stale version")
	// ErrUniqueViolation signals that an insert collided with a unique constraint.
	ErrUniqueViolation = errors.New("unique violation")
	// ErrUnavailable signals that the store could not be reached in time.
	ErrUnavailable = errors.New("store unavailable")
	// ErrCheckViolation signals that a row was refused by a CHECK constraint.
	ErrCheckViolation = errors.New("check violation")
)

type txKey struct{}

// Transactor runs units of work inside a single database transaction. The transaction is carried
// on the context so repositories called from fn share it; nested calls join the outer one.
type Transactor struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTransactor constructs a Transactor. Every outermost transaction is bounded by timeout.
func NewTransactor(db *sqlx.DB, timeout time.Duration) *Transactor {
	return &Transactor{db: db, timeout: timeout}
}

// WithinTx executes fn in a transaction, committing when fn returns nil.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// ext returns the transaction bound to ctx, or the pool when there is none.
func ext(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// classify maps driver level failures onto the store sentinels while keeping the original chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%w (%s): %w", ErrUniqueViolation, pqErr.Constraint, err)
		case pqErr.Code == "23514":
			return fmt.Errorf("%w (%s): %w", ErrCheckViolation, pqErr.Constraint, err)
		case pqErr.Code == "22P02":
			// a malformed uuid cannot match any row
			return fmt.Errorf("%w: %w", sql.ErrNoRows, err)
		case pqErr.Code == "40001", pqErr.Code == "40P01":
			return fmt.Errorf("%w: %w", ErrStaleVersion, err)
		case strings.HasPrefix(string(pqErr.Code), "08"),
			strings.HasPrefix(string(pqErr.Code), "53"),
			pqErr.Code == "57P01", pqErr.Code == "57014":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	if IsUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// IsUnavailable reports whether err means the store could not be reached or timed out.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// expectOneRow turns a zero-row versioned update into ErrStaleVersion.
func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrStaleVersion)
	}
	return nil
}

func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
