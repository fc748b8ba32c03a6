package model

import "time"

// AuditLog records a user-visible action. Rows are written by an async
// subscriber off the hot path; a lost entry never fails the primary operation.
type AuditLog struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID int64             `json:"resource_id"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
