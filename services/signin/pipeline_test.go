package signin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/entitlement"
	"github.com/upb/zoneauth/services/identity"
	"github.com/upb/zoneauth/services/session"
	"go.uber.org/zap"
)

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) Reconcile(ctx context.Context, a identity.Assertion, meta identity.RequestMeta) (*identity.Identity, error) {
	args := m.Called(ctx, a, meta)
	if id := args.Get(0); id != nil {
		return id.(*identity.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockResolver struct{ mock.Mock }

func (m *MockResolver) Resolve(ctx context.Context, userID uuid.UUID, role models.UserRole) (entitlement.Entitlement, error) {
	args := m.Called(ctx, userID, role)
	return args.Get(0).(entitlement.Entitlement), args.Error(1)
}

type MockAudit struct{ mock.Mock }

func (m *MockAudit) LogSignIn(user *models.User, provider string, isNewUser bool, requestID, ip, userAgent string) error {
	return m.Called(user, provider, isNewUser, requestID, ip, userAgent).Error(0)
}

func (m *MockAudit) LogSignInRejected(userID *uuid.UUID, provider, email, reason, requestID, ip, userAgent string) error {
	return m.Called(userID, provider, email, reason, requestID, ip, userAgent).Error(0)
}

type fixture struct {
	reconciler *MockReconciler
	resolver   *MockResolver
	audit      *MockAudit
	metrics    *observability.Metrics
	pipeline   *Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		reconciler: new(MockReconciler),
		resolver:   new(MockResolver),
		audit:      new(MockAudit),
		metrics:    observability.NewMetrics(),
	}
	issuer := session.NewIssuer(nil, f.resolver, "zoneauth", time.Hour, zap.NewNop())
	f.pipeline = NewPipeline(f.reconciler, f.resolver, issuer, f.audit, f.metrics, zap.NewNop())
	return f
}

var assertion = identity.Assertion{Provider: "google", ProviderAccountID: "sub-1", Email: "ana@example.com"}

func TestPipeline_SignIn(t *testing.T) {
	tenant := uuid.New()

	tests := []struct {
		name        string
		identity    *identity.Identity
		ent         entitlement.Entitlement
		resolverErr error
		wantOutcome string
		wantActive  bool
	}{
		{
			name:        "new user",
			identity:    &identity.Identity{User: &models.User{ID: uuid.New(), Role: models.RoleUser}, IsNewUser: true},
			wantOutcome: OutcomeCreated,
		},
		{
			name:        "linked provider",
			identity:    &identity.Identity{User: &models.User{ID: uuid.New(), Role: models.RoleUser}, LinkedProvider: "google"},
			ent:         entitlement.Entitlement{HasActiveSubscription: true, PrimaryTenantID: &tenant},
			wantOutcome: OutcomeLinked,
			wantActive:  true,
		},
		{
			name:        "returning user with unavailable entitlement",
			identity:    &identity.Identity{User: &models.User{ID: uuid.New(), Role: models.RoleUser}},
			ent:         entitlement.Entitlement{HasActiveSubscription: true},
			resolverErr: errors.New("db down"),
			wantOutcome: OutcomeReturning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			meta := identity.RequestMeta{RequestID: "req-1"}
			f.reconciler.On("Reconcile", mock.Anything, assertion, meta).Return(tt.identity, nil)
			f.resolver.On("Resolve", mock.Anything, tt.identity.User.ID, tt.identity.User.Role).Return(tt.ent, tt.resolverErr)
			f.audit.On("LogSignIn", tt.identity.User, "google", tt.identity.IsNewUser, "req-1", "", "").Return(nil)

			claims, err := f.pipeline.SignIn(context.Background(), assertion, meta)
			require.NoError(t, err)
			assert.Equal(t, tt.identity.User.ID.String(), claims.UserID)
			assert.Equal(t, tt.identity.IsNewUser, claims.IsNewUser)
			assert.Equal(t, tt.wantActive, claims.HasActiveSubscription)
			assert.Equal(t, "google", claims.Provider)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignIns.WithLabelValues(tt.wantOutcome)))
			f.audit.AssertExpectations(t)
		})
	}
}

func TestPipeline_SignInRejected(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantOutcome string
		wantReason  string
	}{
		{"link conflict", services.ErrAccountLinkConflict, OutcomeRejected, "conflict"},
		{"invalid assertion", services.ErrInvalidAssertion.Wrap(errors.New("email")), OutcomeRejected, "validation"},
		{"storage", services.ErrDatabaseError.Wrap(errors.New("down")), OutcomeError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.reconciler.On("Reconcile", mock.Anything, assertion, mock.Anything).Return(nil, tt.err)
			f.audit.On("LogSignInRejected", (*uuid.UUID)(nil), "google", "ana@example.com", tt.wantReason, "", "", "").Return(nil)

			claims, err := f.pipeline.SignIn(context.Background(), assertion, identity.RequestMeta{})
			assert.Nil(t, claims)
			require.Error(t, err)
			assert.True(t, services.IsForbiddenError(err))
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignIns.WithLabelValues(tt.wantOutcome)))
			f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
			f.audit.AssertExpectations(t)
		})
	}
}

func TestPipeline_SignInWithoutAudit(t *testing.T) {
	resolver := new(MockResolver)
	reconciler := new(MockReconciler)
	user := &models.User{ID: uuid.New(), Role: models.RoleSuperAdmin}
	reconciler.On("Reconcile", mock.Anything, assertion, mock.Anything).Return(&identity.Identity{User: user}, nil)
	resolver.On("Resolve", mock.Anything, user.ID, models.RoleSuperAdmin).
		Return(entitlement.Entitlement{IsSuperAdmin: true, HasActiveSubscription: true}, nil)

	issuer := session.NewIssuer(nil, resolver, "zoneauth", time.Hour, zap.NewNop())
	p := NewPipeline(reconciler, resolver, issuer, nil, nil, zap.NewNop())

	claims, err := p.SignIn(context.Background(), assertion, identity.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, claims.IsSuperAdmin)
	assert.Nil(t, claims.PrimaryTenantID)
}

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func TestPipeline_Refresh(t *testing.T) {
	userID := uuid.New()
	resolver := new(MockResolver)
	resolver.On("Resolve", mock.Anything, userID, models.RoleAdmin).Return(entitlement.Entitlement{}, nil)
	metrics := observability.NewMetrics()

	users := stubUsers{userID: {ID: userID, Role: models.RoleAdmin}}
	issuer := session.NewIssuer(users, resolver, "zoneauth", time.Hour, zap.NewNop())
	p := NewPipeline(nil, resolver, issuer, nil, metrics, zap.NewNop())

	ok := p.Refresh(context.Background(), &session.Claims{UserID: userID.String(), Role: models.RoleUser})
	assert.Equal(t, models.RoleAdmin, ok.Role)

	degraded := p.Refresh(context.Background(), &session.Claims{UserID: uuid.NewString(), Role: models.RoleAdmin})
	assert.Equal(t, models.RoleUser, degraded.Role)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("degraded")))
}
