// Package entitlement derives a user's subscription entitlement and primary
// workspace from their tenant memberships. Nothing is cached: every call
// reads storage.
package entitlement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"go.uber.org/zap"
)

// MembershipLister is the storage read the resolver depends on.
type MembershipLister interface {
	ListMembershipsWithSubscription(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error)
}

// Entitlement is the derived state carried on a session.
type Entitlement struct {
	IsSuperAdmin          bool       `json:"isSuperAdmin"`
	HasActiveSubscription bool       `json:"hasActiveSubscription"`
	PrimaryTenantID       *uuid.UUID `json:"primaryTenantId"`
}

// FailClosed is the entitlement granted when storage cannot be read.
func FailClosed() Entitlement {
	return Entitlement{}
}

// Resolver computes entitlements.
type Resolver struct {
	tenants MembershipLister
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithClock overrides the time source used to judge period ends.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver reading memberships from tenants
func NewResolver(tenants MembershipLister, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		tenants: tenants,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the entitlement for userID. SUPER_ADMIN short-circuits
// without touching storage. On a storage error the returned Entitlement is
// FailClosed and the error is returned alongside it for logging.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, role models.UserRole) (Entitlement, error) {
	if role.Is(models.RoleSuperAdmin) {
		return Entitlement{IsSuperAdmin: true, HasActiveSubscription: true}, nil
	}

	memberships, err := r.tenants.ListMembershipsWithSubscription(ctx, userID)
	if err != nil {
		r.logger.Warn("entitlement lookup failed, failing closed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return FailClosed(), err
	}

	return Evaluate(memberships, r.now()), nil
}

// Evaluate applies the entitlement rules to memberships at instant now.
//
// A tenant is active when it is not soft-deleted and its subscription is
// active, trialing or past_due, not canceled, and its current period ends
// strictly after now. The primary tenant is the newest active membership,
// else the newest membership of any kind.
func Evaluate(memberships []*models.TenantMembership, now time.Time) Entitlement {
	if len(memberships) == 0 {
		return Entitlement{}
	}

	sorted := make([]*models.TenantMembership, 0, len(memberships))
	for _, m := range memberships {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	if len(sorted) == 0 {
		return Entitlement{}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Membership.CreatedAt.After(sorted[j].Membership.CreatedAt)
	})

	var ent Entitlement
	for _, m := range sorted {
		if IsActive(m, now) {
			id := m.Tenant.ID
			ent.HasActiveSubscription = true
			ent.PrimaryTenantID = &id
			return ent
		}
	}

	id := sorted[0].Tenant.ID
	ent.PrimaryTenantID = &id
	return ent
}

// IsActive reports whether a membership's tenant counts as entitled.
func IsActive(m *models.TenantMembership, now time.Time) bool {
	if m.Tenant.IsDeleted() {
		return false
	}
	return m.Subscription.ActiveAt(now)
}
