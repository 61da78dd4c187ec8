package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TenantPlanFree     = "free"
	TenantStatusActive = "active"
	TenantTierStarter  = "starter"

	defaultTenantName        = "My Workspace"
	defaultTenantDescription = "Default workspace"
)

// Tenant is a workspace. DeletedAt marks a soft delete.
type Tenant struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Slug        string     `json:"slug" db:"slug"` // URL-friendly identifier
	Plan        string     `json:"plan" db:"plan"`
	Status      string     `json:"status" db:"status"`
	Tier        string     `json:"tier" db:"tier"`
	Description *string    `json:"description,omitempty" db:"description"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsDeleted reports whether the tenant has been soft-deleted.
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}

// NewDefaultTenant builds the workspace created alongside a new user.
func NewDefaultTenant(ownerName, ownerEmail string, now time.Time) *Tenant {
	name := strings.TrimSpace(ownerName)
	if name == "" {
		name = defaultTenantName
	}
	desc := defaultTenantDescription
	return &Tenant{
		ID:          uuid.New(),
		Name:        name,
		Slug:        DefaultTenantSlug(ownerEmail, now),
		Plan:        TenantPlanFree,
		Status:      TenantStatusActive,
		Tier:        TenantTierStarter,
		Description: &desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefaultTenantSlug is the lowercased email local part suffixed with the
// creation time in unix milliseconds.
func DefaultTenantSlug(email string, now time.Time) string {
	local := strings.ToLower(EmailLocalPart(email))
	if local == "" {
		local = "workspace"
	}
	return fmt.Sprintf("%s-%d", local, now.UnixMilli())
}
