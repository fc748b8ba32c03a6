package repository

import (
	"encoding/json"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
)

type AuditLogEntity struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID     int64     `gorm:"column:user_id;not null;index"`
	Action     string    `gorm:"column:action;not null"`
	Resource   string    `gorm:"column:resource;not null"`
	ResourceID int64     `gorm:"column:resource_id"`
	Details    string    `gorm:"column:details"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLogEntity) TableName() string {
	return "audit_logs"
}

func toAuditLogEntity(a *model.AuditLog) *AuditLogEntity {
	if a == nil {
		return nil
	}
	details := ""
	if len(a.Details) > 0 {
		b, _ := json.Marshal(a.Details)
		details = string(b)
	}
	return &AuditLogEntity{
		ID:         a.ID,
		UserID:     a.UserID,
		Action:     a.Action,
		Resource:   a.Resource,
		ResourceID: a.ResourceID,
		Details:    details,
		CreatedAt:  a.CreatedAt,
	}
}
