package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/zoneauth/config"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	probeTimeout   = 2 * time.Second
)

// DB is the shared pool behind every repository
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB opens a pool and waits for the first ping, bounded by
// connectTimeout and ctx.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.LogString(), err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return &DB{DB: db, logger: logger}, nil
}

// WrapDB adopts an already opened pool, e.g. one created by sqlmock.
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings, then runs SELECT 1.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Schema is the DDL applied by InitSchema. Every statement is idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		image TEXT,
		role VARCHAR(32) NOT NULL DEFAULT 'USER',
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS oauth_accounts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type VARCHAR(32) NOT NULL,
		provider VARCHAR(64) NOT NULL,
		provider_account_id VARCHAR(255) NOT NULL,
		access_token TEXT,
		refresh_token TEXT,
		id_token TEXT,
		token_type VARCHAR(32),
		scope TEXT,
		session_state TEXT,
		expires_at BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(provider, provider_account_id)
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL UNIQUE,
		plan VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		tier VARCHAR(32) NOT NULL,
		description TEXT,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_tenants (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		role VARCHAR(32) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, tenant_id)
	);

	CREATE TABLE IF NOT EXISTS tenant_subscriptions (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL UNIQUE REFERENCES tenants(id) ON DELETE CASCADE,
		status VARCHAR(32) NOT NULL,
		canceled_at TIMESTAMPTZ,
		current_period_end TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_logs (
		id UUID PRIMARY KEY,
		user_id UUID REFERENCES users(id) ON DELETE SET NULL,
		action VARCHAR(64) NOT NULL,
		resource VARCHAR(64) NOT NULL,
		resource_id VARCHAR(255),
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_oauth_accounts_user_id ON oauth_accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_user_tenants_user_id ON user_tenants(user_id);
	CREATE INDEX IF NOT EXISTS idx_user_tenants_created_at ON user_tenants(created_at);
	CREATE INDEX IF NOT EXISTS idx_user_logs_user_id ON user_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_user_logs_action ON user_logs(action);
	CREATE INDEX IF NOT EXISTS idx_user_logs_created_at ON user_logs(created_at);
`

// InitSchema applies Schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("schema applied")
	return nil
}
