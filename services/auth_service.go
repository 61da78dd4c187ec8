package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenSet is what the provider returned for an authorization code
type TokenSet struct {
	IDToken string
	Tokens  models.OAuthTokens
}

// OAuthExchanger builds provider authorization URLs and exchanges
// authorization codes for tokens.
type OAuthExchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthExchanger creates a new exchanger. The Google endpoint is used
// unless AuthURL and TokenURL override it.
func NewOAuthExchanger(cfg config.OAuthConfig) *OAuthExchanger {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthCodeURL returns the provider consent URL for state. verifier is the
// PKCE code verifier the callback must present again.
func (e *OAuthExchanger) AuthCodeURL(state, verifier string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	}
	return e.config.AuthCodeURL(state, opts...)
}

// NewVerifier returns a fresh PKCE code verifier
func (e *OAuthExchanger) NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Exchange trades an authorization code for tokens
func (e *OAuthExchanger) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	if e.config.ClientID == "" {
		return nil, ErrProviderUnavailable.Wrap(errors.New("oauth client not configured"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	token, err := e.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, ErrTokenExchange.Wrap(err).WithDetail("provider_error", retrieveErr.ErrorCode)
		}
		return nil, ErrProviderUnavailable.Wrap(err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrTokenExchange.Wrap(fmt.Errorf("no id_token in response"))
	}

	set := &TokenSet{IDToken: idToken}
	set.Tokens.IDToken = &idToken
	if token.AccessToken != "" {
		set.Tokens.AccessToken = &token.AccessToken
	}
	if token.RefreshToken != "" {
		set.Tokens.RefreshToken = &token.RefreshToken
	}
	if token.TokenType != "" {
		tokenType := token.TokenType
		set.Tokens.TokenType = &tokenType
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		set.Tokens.Scope = &scope
	}
	if !token.Expiry.IsZero() {
		exp := token.Expiry.Unix()
		set.Tokens.ExpiresAt = &exp
	}
	return set, nil
}
