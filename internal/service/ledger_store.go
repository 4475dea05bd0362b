package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/academy-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

// Transactor runs a unit of work inside one store transaction. Implementations join an
// outer transaction already carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// storeError translates repository failures into typed errors. Typed errors pass through.
func storeError(err error, notFound, action string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case errors.Is(err, repository.ErrCheckViolation):
		return appErrors.Wrap(err, appErrors.ErrValidation, "value rejected by store constraint")
	case errors.Is(err, repository.ErrStaleVersion):
		return appErrors.Wrap(err, appErrors.ErrStaleVersion, "")
	case repository.IsUnavailable(err):
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable, "")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal, action)
}
