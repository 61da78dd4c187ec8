package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/services/audit"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Zone      config.Zone       `json:"zone"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// DatabaseChecker verifies the database answers queries
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuditStats reports the state of the audit writer
type AuditStats interface {
	GetStats() audit.Stats
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db     DatabaseChecker
	zone   config.Zone
	audit  AuditStats
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. audit may be nil.
func NewHealthHandler(db DatabaseChecker, zone config.Zone, audit AuditStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, zone: zone, audit: audit, logger: logger, now: time.Now}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Zone:      h.zone,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. Every zone reads user and tenant
// state on each request, so the database is required.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.db == nil {
		checks["database"] = "not_configured"
		ready = false
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	if h.audit != nil {
		// a stopped audit writer loses sign-in events but does not block sign-in
		if h.audit.GetStats().Started {
			checks["audit"] = "running"
		} else {
			checks["audit"] = "stopped"
		}
	}

	status, httpStatus := "healthy", http.StatusOK
	if !ready {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Zone:      h.zone,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
