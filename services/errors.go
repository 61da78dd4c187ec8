package services

import (
	"errors"
	"fmt"
)

// ErrorType is the category HTTP handlers map to a status code
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError is a typed error with optional cause and details. The
// package-level values below are templates; Wrap and WithDetail return
// copies so the templates are never modified.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same Type, so errors.Is(err,
// ErrUserNotFound) holds for every not-found error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of e with key set.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	out := e.clone()
	out.Details[key] = value
	return out
}

// Wrap returns a copy of e carrying cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	out := e.clone()
	out.Err = cause
	return out
}

func (e *DomainError) clone() *DomainError {
	out := &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: make(map[string]interface{}, len(e.Details)+1)}
	for k, v := range e.Details {
		out.Details[k] = v
	}
	return out
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{Type: errType, Message: message, Err: err}
}

var (
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	ErrInvalidAssertion = NewDomainError(ErrorTypeValidation, "invalid identity assertion", nil)
	ErrInvalidRole      = NewDomainError(ErrorTypeValidation, "invalid role", nil)

	ErrInvalidSession = NewDomainError(ErrorTypeUnauthorized, "invalid session token", nil)

	ErrForbidden      = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrSignInRejected = NewDomainError(ErrorTypeForbidden, "sign-in rejected", nil)

	ErrAccountLinkConflict = NewDomainError(ErrorTypeConflict, "oauth account is linked to a different user", nil)

	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)

	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "identity provider unavailable", nil)
	ErrTokenExchange       = NewDomainError(ErrorTypeExternal, "oauth code exchange failed", nil)
)

// GetErrorType returns the type of the first DomainError in err's chain,
// or "" when there is none.
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details of the first DomainError in err's chain
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

func IsNotFoundError(err error) bool     { return GetErrorType(err) == ErrorTypeNotFound }
func IsValidationError(err error) bool   { return GetErrorType(err) == ErrorTypeValidation }
func IsUnauthorizedError(err error) bool { return GetErrorType(err) == ErrorTypeUnauthorized }
func IsForbiddenError(err error) bool    { return GetErrorType(err) == ErrorTypeForbidden }
func IsConflictError(err error) bool     { return GetErrorType(err) == ErrorTypeConflict }
func IsInternalError(err error) bool     { return GetErrorType(err) == ErrorTypeInternal }
func IsExternalError(err error) bool     { return GetErrorType(err) == ErrorTypeExternal }
