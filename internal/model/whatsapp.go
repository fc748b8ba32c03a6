package model

import (
	"fmt"
	"time"
)

// WhatsAppNumber is a registered WhatsApp Business number owned by one user.
// AccessToken is stored encrypted at rest.
type WhatsAppNumber struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	PhoneNumber       string    `json:"phone_number"`
	PhoneNumberID     string    `json:"phone_number_id"`
	DisplayName       string    `json:"display_name"`
	BusinessAccountID string    `json:"business_account_id"`
	AccessToken       string    `json:"-"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

type WhatsAppNumberCreateRequest struct {
	UserID            int64
	PhoneNumber       string
	PhoneNumberID     string
	DisplayName       string
	BusinessAccountID string
	AccessToken       string
}

func (p WhatsAppNumberCreateRequest) Validate() error {
	if p.UserID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if p.PhoneNumber == "" || p.PhoneNumberID == "" || p.AccessToken == "" {
		return fmt.Errorf("%w: phone_number, phone_number_id and access_token are required", ErrValidation)
	}
	return nil
}

type TemplateStatus string

const (
	TemplateStatusApproved TemplateStatus = "APPROVED"
	TemplateStatusPending  TemplateStatus = "PENDING"
	TemplateStatusRejected TemplateStatus = "REJECTED"
)

// WhatsAppTemplate mirrors a message template registered with the provider.
// (number id, name) is unique.
type WhatsAppTemplate struct {
	ID               int64          `json:"id"`
	WhatsAppNumberID int64          `json:"whatsapp_number_id"`
	Name             string         `json:"name"`
	Language         string         `json:"language"`
	Status           TemplateStatus `json:"status"`
	Category         string         `json:"category"`
	Components       []string       `json:"components"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
