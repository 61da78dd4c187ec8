package middleware

import (
	"context"

	"github.com/upb/zoneauth/services/session"
)

type contextKey string

// ClaimsKey is the context key for the verified session claims
const ClaimsKey contextKey = "session_claims"

// GetClaimsFromContext returns the session claims attached by the gate, or nil.
func GetClaimsFromContext(ctx context.Context) *session.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*session.Claims); ok {
		return claims
	}
	return nil
}

// WithClaims attaches session claims to ctx
func WithClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
