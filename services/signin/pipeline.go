// Package signin runs the sign-in sequence shared by every protocol
// adapter: reconcile the assertion, resolve entitlement, mint the session.
package signin

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/entitlement"
	"github.com/upb/zoneauth/services/identity"
	"github.com/upb/zoneauth/services/session"
	"go.uber.org/zap"
)

// Reconciler maps assertions to users
type Reconciler interface {
	Reconcile(ctx context.Context, a identity.Assertion, meta identity.RequestMeta) (*identity.Identity, error)
}

// EntitlementResolver computes the entitlement snapshot for a new session
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, role models.UserRole) (entitlement.Entitlement, error)
}

// ClaimsIssuer mints and refreshes session claims
type ClaimsIssuer interface {
	Mint(id *identity.Identity, ent entitlement.Entitlement, provider string) *session.Claims
	Refresh(ctx context.Context, c *session.Claims) (*session.Claims, error)
}

// AuditRecorder receives the asynchronous sign-in events
type AuditRecorder interface {
	LogSignIn(user *models.User, provider string, isNewUser bool, requestID, ip, userAgent string) error
	LogSignInRejected(userID *uuid.UUID, provider, email, reason, requestID, ip, userAgent string) error
}

// Sign-in outcomes reported to metrics
const (
	OutcomeCreated   = "created"
	OutcomeLinked    = "linked"
	OutcomeReturning = "returning"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Pipeline is framework-free; HTTP handlers call into it.
type Pipeline struct {
	reconciler Reconciler
	resolver   EntitlementResolver
	issuer     ClaimsIssuer
	audit      AuditRecorder
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewPipeline creates a Pipeline. audit and metrics may be nil.
func NewPipeline(reconciler Reconciler, resolver EntitlementResolver, issuer ClaimsIssuer, audit AuditRecorder, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		reconciler: reconciler,
		resolver:   resolver,
		issuer:     issuer,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// SignIn accepts or rejects an assertion. Every error is a rejection and
// is reported as services.ErrSignInRejected wrapping the cause.
func (p *Pipeline) SignIn(ctx context.Context, a identity.Assertion, meta identity.RequestMeta) (*session.Claims, error) {
	logger := observability.RequestLogger(ctx, p.logger).With(zap.String("provider", a.Provider))

	id, err := p.reconciler.Reconcile(ctx, a, meta)
	if err != nil {
		outcome := OutcomeRejected
		if services.IsInternalError(err) {
			outcome = OutcomeError
		}
		p.metrics.SignIn(outcome)
		logger.Warn("sign-in rejected", zap.String("outcome", outcome), zap.Error(err))
		p.recordRejection(a, err, meta)
		return nil, services.ErrSignInRejected.Wrap(err)
	}

	ent, err := p.resolver.Resolve(ctx, id.User.ID, id.User.Role)
	if err != nil {
		// fail-closed entitlement; the sign-in itself still succeeds
		logger.Warn("entitlement unavailable at sign-in",
			zap.String("user_id", id.User.ID.String()),
			zap.Error(err))
		ent = entitlement.FailClosed()
	}

	claims := p.issuer.Mint(id, ent, a.Provider)

	outcome := OutcomeReturning
	switch {
	case id.IsNewUser:
		outcome = OutcomeCreated
	case id.LinkedProvider != "":
		outcome = OutcomeLinked
	}
	p.metrics.SignIn(outcome)

	if p.audit != nil {
		if err := p.audit.LogSignIn(id.User, a.Provider, id.IsNewUser, meta.RequestID, meta.IPAddress, meta.UserAgent); err != nil {
			logger.Debug("sign-in audit event not queued", zap.Error(err))
		}
	}

	logger.Info("sign-in accepted",
		zap.String("user_id", id.User.ID.String()),
		zap.String("role", string(claims.Role)),
		zap.String("outcome", outcome))
	return claims, nil
}

// Refresh re-derives claims from storage. The result is always usable.
func (p *Pipeline) Refresh(ctx context.Context, c *session.Claims) *session.Claims {
	out, err := p.issuer.Refresh(ctx, c)
	if err != nil {
		p.metrics.Refresh("degraded")
		return out
	}
	p.metrics.Refresh("ok")
	return out
}

func (p *Pipeline) recordRejection(a identity.Assertion, cause error, meta identity.RequestMeta) {
	if p.audit == nil {
		return
	}
	reason := string(services.GetErrorType(cause))
	if reason == "" {
		reason = "unknown"
	}
	if err := p.audit.LogSignInRejected(nil, a.Provider, a.Email, reason, meta.RequestID, meta.IPAddress, meta.UserAgent); err != nil {
		p.logger.Debug("rejection audit event not queued", zap.Error(err))
	}
}
