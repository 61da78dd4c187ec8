// Package identity maps an external OAuth identity assertion onto an
// internal user, creating the user and a default workspace on first sign-in.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/repositories"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// UserStore is the user storage the reconciler needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AccountStore is the OAuth link storage the reconciler needs
type AccountStore interface {
	GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.OAuthAccount, error)
	Create(ctx context.Context, account *models.OAuthAccount) error
	UpdateTokens(ctx context.Context, id uuid.UUID, tokens models.OAuthTokens) error
}

// TenantStore creates the default workspace
type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	AddMember(ctx context.Context, membership *models.UserTenant) error
}

// AuditWriter appends audit rows synchronously, inside the caller's transaction
type AuditWriter interface {
	Insert(ctx context.Context, log *models.AuditLog) error
}

// EventSink records non-critical audit events; it must not block.
type EventSink interface {
	Record(log *models.AuditLog)
}

// Assertion is what the identity provider vouches for.
type Assertion struct {
	Provider          string             `json:"provider" validate:"required"`
	ProviderAccountID string             `json:"providerAccountId" validate:"required"`
	AccountType       string             `json:"type"`
	Email             string             `json:"email" validate:"omitempty,email"`
	Name              string             `json:"name"`
	Image             *string            `json:"image,omitempty"`
	Tokens            models.OAuthTokens `json:"-"`
}

func (a Assertion) accountType() string {
	if a.AccountType == "" {
		return "oauth"
	}
	return a.AccountType
}

// RequestMeta is copied onto audit rows.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Identity is the outcome of a successful reconciliation.
type Identity struct {
	User           *models.User
	IsNewUser      bool
	LinkedProvider string // set when this sign-in linked a new provider to an existing user
}

// Deps groups the reconciler's collaborators
type Deps struct {
	Users     UserStore
	Accounts  AccountStore
	Tenants   TenantStore
	AuditLogs AuditWriter
	TxManager repositories.TransactionManager
	Events    EventSink // optional
}

// Reconciler resolves assertions to users.
type Reconciler struct {
	deps   Deps
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler
func NewReconciler(deps Deps, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{deps: deps, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the assertion in order: existing provider link, then
// existing user by email (linking the provider), then a new user. Errors
// reject the sign-in.
func (r *Reconciler) Reconcile(ctx context.Context, a Assertion, meta RequestMeta) (*Identity, error) {
	if err := utils.ValidateStruct(a); err != nil {
		return nil, services.ErrInvalidAssertion.Wrap(err)
	}

	id, err := r.resolveExisting(ctx, a, meta)
	if err != nil || id != nil {
		return id, err
	}

	if a.Email == "" {
		return nil, services.ErrInvalidAssertion.Wrap(errors.New("email is required to create an account"))
	}

	id, err = r.create(ctx, a, meta)
	if errors.Is(err, repositories.ErrDuplicate) {
		// A concurrent sign-in created the user or link first.
		r.logger.Info("account creation lost a uniqueness race, retrying lookup",
			zap.String("provider", a.Provider),
			zap.Error(err))
		id, err = r.resolveExisting(ctx, a, meta)
		if err == nil && id == nil {
			err = services.ErrSignInRejected.Wrap(errors.New("conflicting account exists but could not be resolved"))
		}
	}
	return id, err
}

// resolveExisting returns (nil, nil) when neither the provider link nor the
// email matches an existing user.
func (r *Reconciler) resolveExisting(ctx context.Context, a Assertion, meta RequestMeta) (*Identity, error) {
	link, err := r.deps.Accounts.GetByProviderAccount(ctx, a.Provider, a.ProviderAccountID)
	switch {
	case err == nil:
		user, err := r.deps.Users.GetByID(ctx, link.UserID)
		if err == nil {
			r.signedIn(ctx, user, link, a)
			return &Identity{User: user}, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDatabaseError.Wrap(err)
		}
		r.logger.Warn("oauth account references a missing user",
			zap.String("provider", a.Provider),
			zap.String("user_id", link.UserID.String()))
		return nil, services.ErrAccountLinkConflict.Wrap(
			fmt.Errorf("link %s/%s points at missing user %s", a.Provider, a.ProviderAccountID, link.UserID))
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	if a.Email == "" {
		return nil, nil
	}

	user, err := r.deps.Users.GetByEmail(ctx, a.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	return r.linkProvider(ctx, user, a, meta)
}

func (r *Reconciler) linkProvider(ctx context.Context, user *models.User, a Assertion, meta RequestMeta) (*Identity, error) {
	acct := models.NewOAuthAccount(user.ID, a.accountType(), a.Provider, a.ProviderAccountID, a.Tokens)
	err := r.deps.Accounts.Create(ctx, acct)
	if errors.Is(err, repositories.ErrDuplicate) {
		existing, getErr := r.deps.Accounts.GetByProviderAccount(ctx, a.Provider, a.ProviderAccountID)
		if getErr != nil {
			return nil, services.ErrDatabaseError.Wrap(getErr)
		}
		if existing.UserID != user.ID {
			r.logger.Warn("refusing to relink oauth account owned by another user",
				zap.String("provider", a.Provider),
				zap.String("email_user_id", user.ID.String()),
				zap.String("link_user_id", existing.UserID.String()))
			return nil, services.ErrAccountLinkConflict
		}
		r.signedIn(ctx, user, existing, a)
		return &Identity{User: user}, nil
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	r.touchLastLogin(ctx, user)
	r.record(models.NewAuditLog(models.AuditActionOAuthLinked, models.AuditResourceOAuthAccounts).
		WithUser(user.ID).
		WithResource(acct.ID.String()).
		WithDetails(map[string]interface{}{"provider": a.Provider}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))

	r.logger.Info("linked oauth provider to existing user",
		zap.String("user_id", user.ID.String()),
		zap.String("provider", a.Provider))
	return &Identity{User: user, LinkedProvider: a.Provider}, nil
}

func (r *Reconciler) create(ctx context.Context, a Assertion, meta RequestMeta) (*Identity, error) {
	now := r.now()

	user := models.NewUser(a.Email, a.Name, a.Image)
	user.CreatedAt, user.UpdatedAt = now, now
	user.LastLoginAt = &now

	acct := models.NewOAuthAccount(user.ID, a.accountType(), a.Provider, a.ProviderAccountID, a.Tokens)
	tenant := models.NewDefaultTenant(a.Name, a.Email, now)
	member := models.NewUserTenant(user.ID, tenant.ID, models.TenantRoleOwner, now)
	entry := models.NewAuditLog(models.AuditActionUserCreated, models.AuditResourceUsers).
		WithUser(user.ID).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{
			"via":              a.Provider + "_oauth",
			"email":            user.Email,
			"has_subscription": false,
		}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)

	err := services.WithTransaction(ctx, r.deps.TxManager, func(txCtx context.Context) error {
		if err := r.deps.Users.Create(txCtx, user); err != nil {
			return err
		}
		if err := r.deps.Accounts.Create(txCtx, acct); err != nil {
			return err
		}
		if err := r.deps.Tenants.Create(txCtx, tenant); err != nil {
			return err
		}
		if err := r.deps.Tenants.AddMember(txCtx, member); err != nil {
			return err
		}
		return r.deps.AuditLogs.Insert(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("created user with default workspace",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("provider", a.Provider))
	return &Identity{User: user, IsNewUser: true}, nil
}

// signedIn applies the non-fatal side effects of a returning sign-in.
func (r *Reconciler) signedIn(ctx context.Context, user *models.User, link *models.OAuthAccount, a Assertion) {
	r.touchLastLogin(ctx, user)

	if link.UserID != user.ID {
		r.logger.Warn("skipping token update for oauth account owned by another user",
			zap.String("user_id", user.ID.String()),
			zap.String("link_user_id", link.UserID.String()))
		return
	}
	if a.Tokens == (models.OAuthTokens{}) {
		return
	}
	if err := r.deps.Accounts.UpdateTokens(ctx, link.ID, a.Tokens); err != nil {
		r.logger.Warn("failed to update oauth tokens", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (r *Reconciler) touchLastLogin(ctx context.Context, user *models.User) {
	now := r.now()
	if err := r.deps.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		r.logger.Warn("failed to update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	user.LastLoginAt = &now
}

func (r *Reconciler) record(log *models.AuditLog) {
	if r.deps.Events != nil {
		r.deps.Events.Record(log)
	}
}
