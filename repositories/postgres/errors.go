package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/upb/zoneauth/repositories"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err came from a unique constraint.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, uniqueViolation)
}

// wrapWriteError maps unique violations to repositories.ErrDuplicate.
func wrapWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to %s: %w: %v", op, repositories.ErrDuplicate, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// wrapReadError maps sql.ErrNoRows to repositories.ErrNotFound.
func wrapReadError(what string, key interface{}, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, key, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
