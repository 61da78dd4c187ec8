package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/repositories"
	"go.uber.org/zap"
)

// TenantRepository implements repositories.TenantRepository
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, slug, plan, status, tier, description, deleted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Slug,
		t.Plan,
		t.Status,
		t.Tier,
		t.Description,
		t.DeletedAt,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("create tenant", err)
	}

	r.logger.Debug("tenant created", zap.String("id", t.ID.String()), zap.String("slug", t.Slug))
	return nil
}

// AddMember adds a user to a tenant
func (r *TenantRepository) AddMember(ctx context.Context, m *models.UserTenant) error {
	query := `
		INSERT INTO user_tenants (id, user_id, tenant_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.TenantID,
		m.Role,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("add tenant member", err)
	}
	return nil
}

// ListMembershipsWithSubscription returns memberships newest first
func (r *TenantRepository) ListMembershipsWithSubscription(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	query := `
		SELECT ut.id, ut.user_id, ut.tenant_id, ut.role, ut.created_at, ut.updated_at,
		       t.id, t.name, t.slug, t.plan, t.status, t.tier, t.description, t.deleted_at, t.created_at, t.updated_at,
		       s.id, s.status, s.canceled_at, s.current_period_end, s.created_at, s.updated_at
		FROM user_tenants ut
		JOIN tenants t ON t.id = ut.tenant_id
		LEFT JOIN tenant_subscriptions s ON s.tenant_id = t.id
		WHERE ut.user_id = $1
		ORDER BY ut.created_at DESC
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.TenantMembership
	for rows.Next() {
		m := &models.TenantMembership{}
		var (
			subID        uuid.NullUUID
			subStatus    sql.NullString
			subCanceled  sql.NullTime
			subPeriodEnd sql.NullTime
			subCreated   sql.NullTime
			subUpdated   sql.NullTime
		)
		err := rows.Scan(
			&m.Membership.ID,
			&m.Membership.UserID,
			&m.Membership.TenantID,
			&m.Membership.Role,
			&m.Membership.CreatedAt,
			&m.Membership.UpdatedAt,
			&m.Tenant.ID,
			&m.Tenant.Name,
			&m.Tenant.Slug,
			&m.Tenant.Plan,
			&m.Tenant.Status,
			&m.Tenant.Tier,
			&m.Tenant.Description,
			&m.Tenant.DeletedAt,
			&m.Tenant.CreatedAt,
			&m.Tenant.UpdatedAt,
			&subID,
			&subStatus,
			&subCanceled,
			&subPeriodEnd,
			&subCreated,
			&subUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant membership: %w", err)
		}

		if subID.Valid {
			sub := &models.TenantSubscription{
				ID:        subID.UUID,
				TenantID:  m.Tenant.ID,
				Status:    models.SubscriptionStatus(subStatus.String),
				CreatedAt: subCreated.Time,
				UpdatedAt: subUpdated.Time,
			}
			if subCanceled.Valid {
				t := subCanceled.Time
				sub.CanceledAt = &t
			}
			if subPeriodEnd.Valid {
				t := subPeriodEnd.Time
				sub.CurrentPeriodEnd = &t
			}
			m.Subscription = sub
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant membership rows: %w", err)
	}

	return memberships, nil
}
