// Package session mints, refreshes and (de)serializes the signed session
// token shared by every zone.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
)

// Claims is the session token payload. Registered claims carry sub, iss,
// iat, exp and jti; the rest is the user and entitlement snapshot.
type Claims struct {
	jwt.RegisteredClaims

	UserID                string          `json:"id"`
	Email                 string          `json:"email"`
	Name                  string          `json:"name"`
	Picture               *string         `json:"picture,omitempty"`
	Role                  models.UserRole `json:"role"`
	Provider              string          `json:"provider,omitempty"`
	IsNewUser             bool            `json:"isNewUser"`
	HasActiveSubscription bool            `json:"hasActiveSubscription"`
	IsSuperAdmin          bool            `json:"isSuperAdmin"`
	PrimaryTenantID       *uuid.UUID      `json:"primaryTenantId"`
}

// Clone returns a deep copy.
func (c *Claims) Clone() *Claims {
	out := *c
	if c.Audience != nil {
		out.Audience = append(jwt.ClaimStrings(nil), c.Audience...)
	}
	out.ExpiresAt = copyDate(c.ExpiresAt)
	out.IssuedAt = copyDate(c.IssuedAt)
	out.NotBefore = copyDate(c.NotBefore)
	if c.Picture != nil {
		p := *c.Picture
		out.Picture = &p
	}
	if c.PrimaryTenantID != nil {
		id := *c.PrimaryTenantID
		out.PrimaryTenantID = &id
	}
	return &out
}

func copyDate(d *jwt.NumericDate) *jwt.NumericDate {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// ExpiresAtTime returns exp, or the zero time when unset.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Session is the JSON shape served by GET /auth/session.
type Session struct {
	ID                    string          `json:"id"`
	Email                 string          `json:"email"`
	Name                  string          `json:"name"`
	Image                 *string         `json:"image,omitempty"`
	Role                  models.UserRole `json:"role"`
	IsNewUser             bool            `json:"isNewUser"`
	HasActiveSubscription bool            `json:"hasActiveSubscription"`
	IsSuperAdmin          bool            `json:"isSuperAdmin"`
	PrimaryTenantID       *uuid.UUID      `json:"primaryTenantId"`
	ExpiresAt             time.Time       `json:"expiresAt"`
}

// View projects claims onto the session wire contract.
func (c *Claims) View() Session {
	return Session{
		ID:                    c.UserID,
		Email:                 c.Email,
		Name:                  c.Name,
		Image:                 c.Picture,
		Role:                  c.Role,
		IsNewUser:             c.IsNewUser,
		HasActiveSubscription: c.HasActiveSubscription,
		IsSuperAdmin:          c.IsSuperAdmin,
		PrimaryTenantID:       c.PrimaryTenantID,
		ExpiresAt:             c.ExpiresAtTime(),
	}
}
