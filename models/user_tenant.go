package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantRoleOwner is the membership role given to the creator of a workspace.
const TenantRoleOwner = "owner"

// UserTenant is a membership. Role is scoped to the tenant and is unrelated
// to the user's application role.
type UserTenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func NewUserTenant(userID, tenantID uuid.UUID, role string, now time.Time) *UserTenant {
	return &UserTenant{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TenantMembership is a membership joined with its tenant and the tenant's
// subscription, if any.
type TenantMembership struct {
	Membership   UserTenant          `json:"membership"`
	Tenant       Tenant              `json:"tenant"`
	Subscription *TenantSubscription `json:"subscription,omitempty"`
}
