package model

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeTemplate MessageType = "TEMPLATE"
)

type MessagePlatform string

const (
	PlatformWhatsApp  MessagePlatform = "WHATSAPP"
	PlatformMessenger MessagePlatform = "MESSENGER"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusFailed    MessageStatus = "FAILED"
)

// Message is one dispatch attempt-unit. Rows are never deleted; campaign
// cancellation flips PENDING rows to FAILED. ProviderMessageID is written on a
// successful send so delivery callbacks can be reconciled later.
type Message struct {
	ID                 int64           `json:"id"`
	LeadID             int64           `json:"lead_id"`
	CampaignID         *int64          `json:"campaign_id,omitempty"`
	WhatsAppNumberID   *int64          `json:"whatsapp_number_id,omitempty"`
	WhatsAppTemplateID *int64          `json:"whatsapp_template_id,omitempty"`
	Type               MessageType     `json:"type"`
	Platform           MessagePlatform `json:"platform"`
	Recipient          string          `json:"recipient"`
	Content            string          `json:"content"`
	Status             MessageStatus   `json:"status"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	ProviderMessageID  string          `json:"provider_message_id,omitempty"`
	SentAt             *time.Time      `json:"sent_at"`
	DeliveredAt        *time.Time      `json:"delivered_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
