package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/repositories/postgres"
	"github.com/upb/zoneauth/services/audit"
	"go.uber.org/zap"
)

type stubAuditStats struct{ started bool }

func (s stubAuditStats) GetStats() audit.Stats { return audit.Stats{Started: s.started} }

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response["data"].(map[string]interface{})
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, config.ZoneAdmin, nil, zap.NewNop())
	handler.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "admin", data["zone"])
	assert.Equal(t, "2025-03-04T05:06:07Z", data["timestamp"])
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(mock sqlmock.Sqlmock)
		audit        AuditStats
		wantStatus   int
		wantDatabase string
		wantAudit    interface{}
		wantOverall  string
	}{
		{
			name: "healthy when database is available",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			},
			audit:        stubAuditStats{started: true},
			wantStatus:   http.StatusOK,
			wantDatabase: "healthy",
			wantAudit:    "running",
			wantOverall:  "healthy",
		},
		{
			name: "unhealthy when ping fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing().WillReturnError(sql.ErrConnDone)
			},
			wantStatus:   http.StatusServiceUnavailable,
			wantDatabase: "unhealthy",
			wantOverall:  "unhealthy",
		},
		{
			name: "unhealthy when query fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)
			},
			wantStatus:   http.StatusServiceUnavailable,
			wantDatabase: "unhealthy",
			wantOverall:  "unhealthy",
		},
		{
			name: "stopped audit writer is reported but stays ready",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			},
			audit:        stubAuditStats{started: false},
			wantStatus:   http.StatusOK,
			wantDatabase: "healthy",
			wantAudit:    "stopped",
			wantOverall:  "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			handler := NewHealthHandler(postgres.WrapDB(db, zap.NewNop()), config.ZoneUser, tt.audit, zap.NewNop())
			w := httptest.NewRecorder()
			handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeData(t, w)
			assert.Equal(t, tt.wantOverall, data["status"])
			checks := data["checks"].(map[string]interface{})
			assert.Equal(t, tt.wantDatabase, checks["database"])
			assert.Equal(t, tt.wantAudit, checks["audit"])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandleReadiness_NoDatabase(t *testing.T) {
	handler := NewHealthHandler(nil, config.ZoneFrontDoor, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decodeData(t, w)["checks"].(map[string]interface{})
	assert.Equal(t, "not_configured", checks["database"])
}
