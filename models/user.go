package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole is the application-level role carried on every session.
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// NormalizeRole upper-cases and trims a role string. Unknown values are
// returned as-is so callers can still route them to the front door.
func NormalizeRole(role string) UserRole {
	return UserRole(strings.ToUpper(strings.TrimSpace(role)))
}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch NormalizeRole(string(r)) {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Is compares roles case-insensitively.
func (r UserRole) Is(other UserRole) bool {
	return NormalizeRole(string(r)) == NormalizeRole(string(other))
}

// User is an internal account, resolved from one or more OAuth accounts.
type User struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	Name        string     `json:"name" db:"name"`
	Image       *string    `json:"image,omitempty" db:"image"`
	Role        UserRole   `json:"role" db:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// NewUser creates a USER-role account. An empty name falls back to the
// local part of the email, then to "User".
func NewUser(email, name string, image *string) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      DisplayName(name, email),
		Image:     image,
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayName picks the name shown for a new account.
func DisplayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if local := EmailLocalPart(email); local != "" {
		return local
	}
	return "User"
}

// EmailLocalPart returns everything before the '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// IsAdmin returns true for ADMIN and SUPER_ADMIN
func (u *User) IsAdmin() bool {
	return u.Role.Is(RoleAdmin) || u.Role.Is(RoleSuperAdmin)
}

// IsSuperAdmin returns true if the user has the SUPER_ADMIN role
func (u *User) IsSuperAdmin() bool {
	return u.Role.Is(RoleSuperAdmin)
}
