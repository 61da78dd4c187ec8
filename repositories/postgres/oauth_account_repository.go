package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/repositories"
	"go.uber.org/zap"
)

// OAuthAccountRepository implements repositories.OAuthAccountRepository
type OAuthAccountRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewOAuthAccountRepository creates a new OAuth account repository
func NewOAuthAccountRepository(db *DB, logger *zap.Logger) repositories.OAuthAccountRepository {
	return &OAuthAccountRepository{
		db:     db,
		logger: logger,
	}
}

// GetByProviderAccount retrieves the link for a provider identity
func (r *OAuthAccountRepository) GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.OAuthAccount, error) {
	query := `
		SELECT id, user_id, type, provider, provider_account_id,
		       access_token, refresh_token, id_token, token_type, scope, session_state, expires_at,
		       created_at, updated_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_account_id = $2
	`

	a := &models.OAuthAccount{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, provider, providerAccountID).Scan(
		&a.ID,
		&a.UserID,
		&a.Type,
		&a.Provider,
		&a.ProviderAccountID,
		&a.AccessToken,
		&a.RefreshToken,
		&a.IDToken,
		&a.TokenType,
		&a.Scope,
		&a.SessionState,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, wrapReadError("oauth account", provider+"/"+providerAccountID, err)
	}
	return a, nil
}

// Create links a provider identity to a user
func (r *OAuthAccountRepository) Create(ctx context.Context, a *models.OAuthAccount) error {
	query := `
		INSERT INTO oauth_accounts (
			id, user_id, type, provider, provider_account_id,
			access_token, refresh_token, id_token, token_type, scope, session_state, expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.Type,
		a.Provider,
		a.ProviderAccountID,
		a.AccessToken,
		a.RefreshToken,
		a.IDToken,
		a.TokenType,
		a.Scope,
		a.SessionState,
		a.ExpiresAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("create oauth account", err)
	}

	r.logger.Debug("oauth account linked",
		zap.String("user_id", a.UserID.String()),
		zap.String("provider", a.Provider))
	return nil
}

// UpdateTokens overwrites the token fields of a link
func (r *OAuthAccountRepository) UpdateTokens(ctx context.Context, id uuid.UUID, t models.OAuthTokens) error {
	query := `
		UPDATE oauth_accounts
		SET access_token = $2,
		    refresh_token = COALESCE($3, refresh_token),
		    id_token = $4,
		    token_type = $5,
		    scope = $6,
		    session_state = $7,
		    expires_at = $8,
		    updated_at = $9
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		id,
		t.AccessToken,
		t.RefreshToken,
		t.IDToken,
		t.TokenType,
		t.Scope,
		t.SessionState,
		t.ExpiresAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update oauth tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("oauth account %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}
