package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuthAccount links a provider identity to a User. The pair
// (Provider, ProviderAccountID) is unique in storage.
type OAuthAccount struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	Type              string    `json:"type" db:"type"`
	Provider          string    `json:"provider" db:"provider"`
	ProviderAccountID string    `json:"provider_account_id" db:"provider_account_id"`

	AccessToken  *string `json:"-" db:"access_token"`
	RefreshToken *string `json:"-" db:"refresh_token"`
	IDToken      *string `json:"-" db:"id_token"`
	TokenType    *string `json:"-" db:"token_type"`
	Scope        *string `json:"-" db:"scope"`
	SessionState *string `json:"-" db:"session_state"`
	ExpiresAt    *int64  `json:"-" db:"expires_at"` // unix seconds

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OAuthTokens is the token material returned by a provider at sign-in.
type OAuthTokens struct {
	AccessToken  *string
	RefreshToken *string
	IDToken      *string
	TokenType    *string
	Scope        *string
	SessionState *string
	ExpiresAt    *int64
}

// NewOAuthAccount creates a link for userID.
func NewOAuthAccount(userID uuid.UUID, accountType, provider, providerAccountID string, tokens OAuthTokens) *OAuthAccount {
	now := time.Now()
	a := &OAuthAccount{
		ID:                uuid.New(),
		UserID:            userID,
		Type:              accountType,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a.ApplyTokens(tokens)
	return a
}

// ApplyTokens overwrites the stored token fields.
func (a *OAuthAccount) ApplyTokens(t OAuthTokens) {
	a.AccessToken = t.AccessToken
	a.RefreshToken = t.RefreshToken
	a.IDToken = t.IDToken
	a.TokenType = t.TokenType
	a.Scope = t.Scope
	a.SessionState = t.SessionState
	a.ExpiresAt = t.ExpiresAt
}
