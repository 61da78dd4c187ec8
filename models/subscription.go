package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the billing provider's status values.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
)

// Entitling reports whether the status counts towards an active subscription.
// past_due is a grace state and still entitles.
func (s SubscriptionStatus) Entitling() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

// TenantSubscription is read-only here; billing owns the writes.
type TenantSubscription struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	TenantID         uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	Status           SubscriptionStatus `json:"status" db:"status"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the subscription entitles at instant now.
func (s *TenantSubscription) ActiveAt(now time.Time) bool {
	if s == nil || !s.Status.Entitling() || s.CanceledAt != nil || s.CurrentPeriodEnd == nil {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}
