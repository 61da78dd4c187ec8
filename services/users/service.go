// Package users holds operator actions on accounts: lookup, role changes
// and audit history.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/repositories"
	"github.com/upb/zoneauth/services"
	"go.uber.org/zap"
)

// Store is the user storage this service needs
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.UserRole) error
}

// AuditLog reads and appends audit rows
type AuditLog interface {
	Insert(ctx context.Context, log *models.AuditLog) error
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// SetRoleRequest names the account and its new role
type SetRoleRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Role      string `json:"role" validate:"required,role"`
	ChangedBy string `json:"-"`
}

// Service changes roles. Every change is audited in the same transaction.
type Service struct {
	users     Store
	auditLogs AuditLog
	txManager repositories.TransactionManager
	logger    *zap.Logger
}

// NewService creates a new Service
func NewService(users Store, auditLogs AuditLog, txManager repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{users: users, auditLogs: auditLogs, txManager: txManager, logger: logger}
}

// Lookup finds a user by email
func (s *Service) Lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrUserNotFound.Wrap(err).WithDetail("email", email)
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return user, nil
}

// SetRole changes the application role of the user with the given email.
// Setting the current role again is a no-op and writes no audit row.
func (s *Service) SetRole(ctx context.Context, req SetRoleRequest) (*models.User, error) {
	role := models.NormalizeRole(req.Role)
	if !role.Valid() {
		return nil, services.ErrInvalidRole.Wrap(errors.New(req.Role)).WithDetail("role", req.Role)
	}

	user, err := s.Lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	from := user.Role
	if from.Is(role) {
		return user, nil
	}

	updated, err := services.WithTransactionResult(ctx, s.txManager, func(txCtx context.Context) (*models.User, error) {
		if err := s.users.UpdateRole(txCtx, user.ID, role); err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}
		entry := models.NewAuditLog(models.AuditActionUserRoleChanged, models.AuditResourceUsers).
			WithUser(user.ID).
			WithResource(user.ID.String()).
			WithDetails(map[string]interface{}{
				"from":       from,
				"to":         role,
				"changed_by": req.ChangedBy,
			})
		if err := s.auditLogs.Insert(txCtx, entry); err != nil {
			return nil, err
		}
		changed := *user
		changed.Role = role
		return &changed, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed",
		zap.String("user_id", user.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(role)),
		zap.String("changed_by", req.ChangedBy))
	return updated, nil
}

// AuditTrail returns the newest audit rows for a user
func (s *Service) AuditTrail(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound.Wrap(err)
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.auditLogs.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return logs, nil
}
