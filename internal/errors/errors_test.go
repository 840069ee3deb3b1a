package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := Validation("owner is required")
		assert.Equal(t, "owner is required", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Unavailable("redis health", cause)
		assert.Equal(t, "redis health: connection refused", err.Error())
	})
}

func TestConstructorsSetCodes(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"not found", NotFound("gone"), ErrCodeNotFound},
		{"not found formatted", NotFoundf("job %s not found", "abc"), ErrCodeNotFound},
		{"validation", Validation("bad"), ErrCodeValidation},
		{"validation formatted", Validationf("field %s", "owner"), ErrCodeValidation},
		{"fetch", Fetch("github down", cause), ErrCodeFetch},
		{"analysis", Analysis("ruleset crashed", cause), ErrCodeAnalysis},
		{"unavailable", Unavailable("db down", cause), ErrCodeUnavailable},
		{"internal", Internal("oops"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x")))
	assert.True(t, IsValidation(Validation("x")))
	assert.True(t, IsFetch(Fetch("x", nil)))
	assert.True(t, IsAnalysis(Analysis("x", nil)))
	assert.True(t, IsUnavailable(Unavailable("x", nil)))
	assert.True(t, IsTimeout(&AppError{Code: ErrCodeTimeout}))

	assert.False(t, IsNotFound(Validation("x")))
	assert.False(t, IsValidation(nil))
	assert.False(t, IsFetch(errors.New("plain")))

	// Predicates see through wrapping.
	wrapped := fmt.Errorf("outer: %w", NotFound("inner"))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, ErrCodeNotFound, GetCode(wrapped))
}

func TestWrap(t *testing.T) {
	t.Run("preserves cause chain", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Wrap(cause, ErrCodeUnavailable, "save review")

		assert.Equal(t, ErrCodeUnavailable, err.Code)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("nil in nil out", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
		assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
	})

	t.Run("formatted message", func(t *testing.T) {
		err := Wrapf(errors.New("x"), ErrCodeFetch, "fetch pull %d", 42)
		assert.Equal(t, "fetch pull 42", err.Message)
	})
}

func TestGetCodeUnknownError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		code ErrorCode
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"canceled", fmt.Errorf("query: %w", context.Canceled), ErrCodeCanceled},
		{"no rows", fmt.Errorf("get job: %w", pgx.ErrNoRows), ErrCodeNotFound},
		{"connection exception", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, ErrCodeUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, ErrCodeUnavailable},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "status check failed"}, ErrCodeValidation},
		{"not null violation", &pgconn.PgError{Code: pgerrcode.NotNullViolation}, ErrCodeValidation},
		{"invalid uuid text", &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation}, ErrCodeValidation},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, ErrCodeInternal},
		{"net error", fakeNetError{}, ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.in)
			require.Error(t, mapped)
			assert.Equal(t, tt.code, GetCode(mapped))
			assert.ErrorIs(t, mapped, tt.in)
		})
	}

	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("unrecognized errors pass through", func(t *testing.T) {
		plain := errors.New("something odd")
		assert.Equal(t, plain, MapDBError(plain))
	})

	t.Run("check violation keeps postgres message", func(t *testing.T) {
		mapped := MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "status check failed"})
		assert.Contains(t, mapped.Error(), "status check failed")
	})
}
