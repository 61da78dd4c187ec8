package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
)

var (
	// ErrNotFound is returned (wrapped) when a lookup matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned (wrapped) when a write violates a unique
	// constraint, e.g. a concurrent sign-in created the same account first.
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx passed to fn join the transaction.
	// Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error

	// GetByID returns ErrNotFound when no user has the id
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail matches the email exactly; returns ErrNotFound on miss
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// TouchLastLogin records a successful sign-in
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdateRole changes the application role
	UpdateRole(ctx context.Context, id uuid.UUID, role models.UserRole) error
}

// OAuthAccountRepository handles provider account links
type OAuthAccountRepository interface {
	// GetByProviderAccount returns ErrNotFound when the pair is not linked
	GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.OAuthAccount, error)

	// Create returns ErrDuplicate when the pair is already linked
	Create(ctx context.Context, account *models.OAuthAccount) error

	// UpdateTokens overwrites the token fields of an existing link
	UpdateTokens(ctx context.Context, id uuid.UUID, tokens models.OAuthTokens) error
}

// TenantRepository handles tenants and memberships
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error

	AddMember(ctx context.Context, membership *models.UserTenant) error

	// ListMembershipsWithSubscription returns every membership of the user
	// joined with its tenant and subscription, newest membership first.
	// Soft-deleted tenants are included.
	ListMembershipsWithSubscription(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID returns rows newest first
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	OAuthAccounts OAuthAccountRepository
	Tenants       TenantRepository
	AuditLogs     AuditRepository
}
