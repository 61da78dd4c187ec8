package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/services/entitlement"
	"github.com/upb/zoneauth/services/identity"
	"go.uber.org/zap"
)

// UserReader loads the current user row on refresh.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EntitlementResolver recomputes entitlement on refresh.
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, role models.UserRole) (entitlement.Entitlement, error)
}

// Issuer mints new session claims and refreshes existing ones.
type Issuer struct {
	users    UserReader
	resolver EntitlementResolver
	issuer   string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures an Issuer
type Option func(*Issuer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. ttl is the absolute session lifetime.
func NewIssuer(users UserReader, resolver EntitlementResolver, issuer string, ttl time.Duration, logger *zap.Logger, opts ...Option) *Issuer {
	i := &Issuer{
		users:    users,
		resolver: resolver,
		issuer:   issuer,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Mint creates claims for a freshly reconciled identity.
func (i *Issuer) Mint(id *identity.Identity, ent entitlement.Entitlement, provider string) *Claims {
	now := i.now()
	user := id.User
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID:    user.ID.String(),
		Email:     user.Email,
		Name:      user.Name,
		Picture:   user.Image,
		Role:      models.NormalizeRole(string(user.Role)),
		Provider:  provider,
		IsNewUser: id.IsNewUser,
	}
	applyEntitlement(c, ent)
	return c.Clone()
}

// Refresh returns a copy of c with user and entitlement fields re-read from
// storage. exp and iat are never changed. The returned claims are always
// usable; a non-nil error reports that the refresh degraded: entitlement
// flags were cleared and an elevated role was demoted to USER.
func (i *Issuer) Refresh(ctx context.Context, c *Claims) (*Claims, error) {
	out := c.Clone()
	if out.UserID == "" {
		return out, nil
	}

	userID, err := uuid.Parse(out.UserID)
	if err != nil {
		return i.degrade(out, fmt.Errorf("parse user id: %w", err)), err
	}

	user, err := i.users.GetByID(ctx, userID)
	if err != nil {
		return i.degrade(out, err), err
	}
	if user == nil {
		err = errors.New("user not found")
		return i.degrade(out, err), err
	}

	out.Name = user.Name
	out.Email = user.Email
	out.Picture = user.Image
	out.Role = models.NormalizeRole(string(user.Role))

	ent, err := i.resolver.Resolve(ctx, user.ID, out.Role)
	if err != nil {
		return i.degrade(out, err), err
	}
	applyEntitlement(out, ent)
	return out, nil
}

func (i *Issuer) degrade(c *Claims, cause error) *Claims {
	applyEntitlement(c, entitlement.FailClosed())
	if c.Role.Is(models.RoleAdmin) || c.Role.Is(models.RoleSuperAdmin) {
		c.Role = models.RoleUser
	}
	i.logger.Warn("session refresh degraded",
		zap.String("user_id", c.UserID),
		zap.Error(cause))
	return c
}

func applyEntitlement(c *Claims, ent entitlement.Entitlement) {
	c.IsSuperAdmin = ent.IsSuperAdmin
	c.HasActiveSubscription = ent.HasActiveSubscription
	c.PrimaryTenantID = nil
	if ent.PrimaryTenantID != nil {
		id := *ent.PrimaryTenantID
		c.PrimaryTenantID = &id
	}
}
