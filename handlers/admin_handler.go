package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/users"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// UserService is the account administration the admin zone exposes
type UserService interface {
	Lookup(ctx context.Context, email string) (*models.User, error)
	SetRole(ctx context.Context, req users.SetRoleRequest) (*models.User, error)
	AuditTrail(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// AdminHandler handles the admin zone API
type AdminHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(users UserService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{users: users, logger: logger}
}

// GetUser handles GET /admin/api/users?email=
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := utils.ValidateEmail(email); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.users.Lookup(r.Context(), email)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// SetRole handles PUT /admin/api/users/role. Only super admins may change roles.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || !(claims.IsSuperAdmin || claims.Role.Is(models.RoleSuperAdmin)) {
		HandleServiceError(w, services.ErrForbidden.WithDetail("required_role", models.RoleSuperAdmin), h.logger)
		return
	}

	var req users.SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	req.ChangedBy = claims.Email

	user, err := h.users.SetRole(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// AuditTrail handles GET /admin/api/users/{id}/audit
func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user id", nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.users.AuditTrail(r.Context(), id, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, logs)
}
