package repository

import (
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
)

type MessageEntity struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement;column:id"`
	LeadID             int64      `gorm:"column:lead_id;not null;index"`
	CampaignID         *int64     `gorm:"column:campaign_id;index"`
	WhatsAppNumberID   *int64     `gorm:"column:whatsapp_number_id"`
	WhatsAppTemplateID *int64     `gorm:"column:whatsapp_template_id"`
	Type               string     `gorm:"column:type;not null"`
	Platform           string     `gorm:"column:platform;not null;index"`
	Recipient          string     `gorm:"column:recipient;not null;index"`
	Content            string     `gorm:"column:content;not null"`
	Status             string     `gorm:"column:status;not null;index"`
	ErrorMessage       string     `gorm:"column:error_message"`
	ProviderMessageID  string     `gorm:"column:provider_message_id;uniqueIndex:idx_messages_provider_id,where:provider_message_id <> ''"`
	SentAt             *time.Time `gorm:"column:sent_at"`
	DeliveredAt        *time.Time `gorm:"column:delivered_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:                 m.ID,
		LeadID:             m.LeadID,
		CampaignID:         m.CampaignID,
		WhatsAppNumberID:   m.WhatsAppNumberID,
		WhatsAppTemplateID: m.WhatsAppTemplateID,
		Type:               string(m.Type),
		Platform:           string(m.Platform),
		Recipient:          m.Recipient,
		Content:            m.Content,
		Status:             string(m.Status),
		ErrorMessage:       m.ErrorMessage,
		ProviderMessageID:  m.ProviderMessageID,
		SentAt:             m.SentAt,
		DeliveredAt:        m.DeliveredAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:                 e.ID,
		LeadID:             e.LeadID,
		CampaignID:         e.CampaignID,
		WhatsAppNumberID:   e.WhatsAppNumberID,
		WhatsAppTemplateID: e.WhatsAppTemplateID,
		Type:               model.MessageType(e.Type),
		Platform:           model.MessagePlatform(e.Platform),
		Recipient:          e.Recipient,
		Content:            e.Content,
		Status:             model.MessageStatus(e.Status),
		ErrorMessage:       e.ErrorMessage,
		ProviderMessageID:  e.ProviderMessageID,
		SentAt:             e.SentAt,
		DeliveredAt:        e.DeliveredAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	if entities == nil {
		return nil
	}
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
