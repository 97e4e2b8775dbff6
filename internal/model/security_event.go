package model

import "time"

// SecurityEventType はセキュリティ監査ログの種別を表す。
type SecurityEventType string

const (
	SecurityEventLogin             SecurityEventType = "login"
	SecurityEventLogout            SecurityEventType = "logout"
	SecurityEventAuthFailure       SecurityEventType = "auth_failure"
	SecurityEventPermissionDenied  SecurityEventType = "permission_denied"
	SecurityEventRateLimitExceeded SecurityEventType = "rate_limit_exceeded"
	SecurityEventSessionEvicted    SecurityEventType = "session_evicted"
)

// SecurityEvent はセキュリティ上意味のある出来事の記録。
type SecurityEvent struct {
	ID         string            `json:"id"`
	Type       SecurityEventType `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Path       string            `json:"path,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
