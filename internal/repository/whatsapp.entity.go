package repository

import (
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/lib/pq"
)

type WhatsAppNumberEntity struct {
	ID                int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID            int64     `gorm:"column:user_id;not null;index"`
	PhoneNumber       string    `gorm:"column:phone_number;not null;uniqueIndex"`
	PhoneNumberID     string    `gorm:"column:phone_number_id;not null"`
	DisplayName       string    `gorm:"column:display_name"`
	BusinessAccountID string    `gorm:"column:business_account_id;not null"`
	AccessToken       string    `gorm:"column:access_token;not null"`
	IsActive          bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (WhatsAppNumberEntity) TableName() string {
	return "whatsapp_numbers"
}

type WhatsAppTemplateEntity struct {
	ID               int64          `gorm:"primaryKey;autoIncrement;column:id"`
	WhatsAppNumberID int64          `gorm:"column:whatsapp_number_id;not null;uniqueIndex:idx_templates_number_name"`
	Name             string         `gorm:"column:name;not null;uniqueIndex:idx_templates_number_name"`
	Language         string         `gorm:"column:language;not null"`
	Status           string         `gorm:"column:status;not null"`
	Category         string         `gorm:"column:category"`
	Components       pq.StringArray `gorm:"column:components;type:text[]"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (WhatsAppTemplateEntity) TableName() string {
	return "whatsapp_templates"
}

func toWhatsAppNumberEntity(n *model.WhatsAppNumber) *WhatsAppNumberEntity {
	if n == nil {
		return nil
	}
	return &WhatsAppNumberEntity{
		ID:                n.ID,
		UserID:            n.UserID,
		PhoneNumber:       n.PhoneNumber,
		PhoneNumberID:     n.PhoneNumberID,
		DisplayName:       n.DisplayName,
		BusinessAccountID: n.BusinessAccountID,
		AccessToken:       n.AccessToken,
		IsActive:          n.IsActive,
		CreatedAt:         n.CreatedAt,
	}
}

func toWhatsAppNumberModel(e *WhatsAppNumberEntity) *model.WhatsAppNumber {
	if e == nil {
		return nil
	}
	return &model.WhatsAppNumber{
		ID:                e.ID,
		UserID:            e.UserID,
		PhoneNumber:       e.PhoneNumber,
		PhoneNumberID:     e.PhoneNumberID,
		DisplayName:       e.DisplayName,
		BusinessAccountID: e.BusinessAccountID,
		AccessToken:       e.AccessToken,
		IsActive:          e.IsActive,
		CreatedAt:         e.CreatedAt,
	}
}

func toWhatsAppTemplateEntity(t *model.WhatsAppTemplate) *WhatsAppTemplateEntity {
	if t == nil {
		return nil
	}
	return &WhatsAppTemplateEntity{
		ID:               t.ID,
		WhatsAppNumberID: t.WhatsAppNumberID,
		Name:             t.Name,
		Language:         t.Language,
		Status:           string(t.Status),
		Category:         t.Category,
		Components:       pq.StringArray(t.Components),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toWhatsAppTemplateModel(e *WhatsAppTemplateEntity) *model.WhatsAppTemplate {
	if e == nil {
		return nil
	}
	return &model.WhatsAppTemplate{
		ID:               e.ID,
		WhatsAppNumberID: e.WhatsAppNumberID,
		Name:             e.Name,
		Language:         e.Language,
		Status:           model.TemplateStatus(e.Status),
		Category:         e.Category,
		Components:       []string(e.Components),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}
