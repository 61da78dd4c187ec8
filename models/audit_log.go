package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction names an audited event
type AuditAction string

const (
	AuditActionUserCreated     AuditAction = "USER_CREATED"
	AuditActionUserSignedIn    AuditAction = "USER_SIGNED_IN"
	AuditActionSignInRejected  AuditAction = "SIGN_IN_REJECTED"
	AuditActionOAuthLinked     AuditAction = "OAUTH_ACCOUNT_LINKED"
	AuditActionUserRoleChanged AuditAction = "USER_ROLE_CHANGED"
)

const (
	AuditResourceUsers         = "users"
	AuditResourceOAuthAccounts = "oauth_accounts"
)

// AuditLog is one row of user_logs. UserID is nil for rejected sign-ins
// that never resolved to an account.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     AuditAction     `json:"action" db:"action"`
	Resource   string          `json:"resource" db:"resource"`
	ResourceID *string         `json:"resource_id,omitempty" db:"resource_id"`
	Details    json.RawMessage `json:"details" db:"details"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	RequestID  string          `json:"request_id" db:"request_id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// NewAuditLog starts an entry stamped with a fresh id and the current time.
func NewAuditLog(action AuditAction, resource string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Resource:  resource,
		CreatedAt: time.Now(),
	}
}

func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails stores details as JSON. Unmarshalable values are dropped.
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
