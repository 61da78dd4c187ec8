package oidc

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/services/identity"
)

// IDTokenClaims are the standard OIDC profile claims
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce,omitempty"`
}

// Assertion converts verified claims into an identity assertion. An
// unverified email is dropped so it cannot be used to link accounts.
func (c *IDTokenClaims) Assertion(provider string, tokens models.OAuthTokens) identity.Assertion {
	a := identity.Assertion{
		Provider:          provider,
		ProviderAccountID: c.Subject,
		AccountType:       "oauth",
		Name:              c.Name,
		Tokens:            tokens,
	}
	if c.EmailVerified {
		a.Email = c.Email
	}
	if c.Picture != "" {
		pic := c.Picture
		a.Image = &pic
	}
	return a
}
