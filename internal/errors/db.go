package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
// - pgx.ErrNoRows → NotFound
// - connection/shutdown errors and net errors → Unavailable
// - check and NOT NULL violations → Validation
// - context deadline/cancel → Timeout/Canceled
//
// If the error is not a recognized database error, the original error is returned.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation was canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(err, pgErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &AppError{Code: ErrCodeUnavailable, Message: "database unreachable", Cause: err}
	}

	return err
}

func mapPgError(err error, pgErr *pgconn.PgError) error {
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code):
		return &AppError{Code: ErrCodeUnavailable, Message: "database unavailable", Cause: err}
	case pgErr.Code == pgerrcode.CheckViolation,
		pgErr.Code == pgerrcode.NotNullViolation,
		pgErr.Code == pgerrcode.InvalidTextRepresentation:
		return &AppError{Code: ErrCodeValidation, Message: pgErr.Message, Cause: err}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: err}
	}
}
