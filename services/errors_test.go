package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "not_found: user not found", ErrUserNotFound.Error())
	assert.Equal(t, "external: oauth code exchange failed (invalid_grant)",
		ErrTokenExchange.Wrap(errors.New("invalid_grant")).Error())
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same type", NewDomainError(ErrorTypeConflict, "conflict", nil), ErrAccountLinkConflict, true},
		{"different type", NewDomainError(ErrorTypeValidation, "validation", nil), ErrAccountLinkConflict, false},
		{"plain target", ErrSignInRejected, errors.New("regular error"), false},
		{"wrapped through fmt", fmt.Errorf("sign in: %w", ErrSignInRejected), ErrForbidden, true},
		{"cause is reachable", ErrDatabaseError.Wrap(errNoRows), errNoRows, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

var errNoRows = errors.New("sql: no rows in result set")

func TestDomainError_CopiesLeaveTemplatesUntouched(t *testing.T) {
	wrapped := ErrUserNotFound.Wrap(errNoRows).WithDetail("email", "ana@example.com")
	other := ErrUserNotFound.WithDetail("email", "bob@example.com")

	assert.NotSame(t, ErrUserNotFound, wrapped)
	assert.Nil(t, ErrUserNotFound.Err)
	assert.Empty(t, ErrUserNotFound.Details)

	assert.Equal(t, "ana@example.com", GetErrorDetails(wrapped)["email"])
	assert.Equal(t, "bob@example.com", GetErrorDetails(other)["email"])
	assert.Nil(t, other.Err)
}

func TestDomainError_WithDetailChains(t *testing.T) {
	err := ErrInvalidRole.WithDetail("role", "OWNER").WithDetail("email", "ana@example.com")

	require.Len(t, err.Details, 2)
	assert.Equal(t, "OWNER", err.Details["role"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestErrorTypeCheckers(t *testing.T) {
	checkers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeInternal:     IsInternalError,
		ErrorTypeExternal:     IsExternalError,
	}

	for errType, check := range checkers {
		t.Run(string(errType), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewDomainError(errType, "test error", nil))
			assert.True(t, check(err))
			assert.False(t, check(errors.New("regular")))
			assert.False(t, check(nil))
			assert.Equal(t, errType, GetErrorType(err))
		})
	}
}

func TestErrorTemplatesByType(t *testing.T) {
	tests := []struct {
		err  *DomainError
		want ErrorType
	}{
		{ErrUserNotFound, ErrorTypeNotFound},
		{ErrInvalidAssertion, ErrorTypeValidation},
		{ErrInvalidRole, ErrorTypeValidation},
		{ErrInvalidSession, ErrorTypeUnauthorized},
		{ErrForbidden, ErrorTypeForbidden},
		{ErrSignInRejected, ErrorTypeForbidden},
		{ErrAccountLinkConflict, ErrorTypeConflict},
		{ErrDatabaseError, ErrorTypeInternal},
		{ErrTransactionFailed, ErrorTypeInternal},
		{ErrProviderUnavailable, ErrorTypeExternal},
		{ErrTokenExchange, ErrorTypeExternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
		})
	}
}
