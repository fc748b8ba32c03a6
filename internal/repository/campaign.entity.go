package repository

import (
	"encoding/json"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
)

type CampaignEntity struct {
	ID              int64      `gorm:"primaryKey;autoIncrement;column:id"`
	UserID          int64      `gorm:"column:user_id;not null;index"`
	Name            string     `gorm:"column:name;not null"`
	Description     string     `gorm:"column:description"`
	Type            string     `gorm:"column:type;not null"`
	Status          string     `gorm:"column:status;not null;index"`
	TargetAudience  string     `gorm:"column:target_audience;not null;default:'{}'"`
	MessageTemplate string     `gorm:"column:message_template;not null"`
	ScheduledAt     *time.Time `gorm:"column:scheduled_at"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(c *model.Campaign) *CampaignEntity {
	if c == nil {
		return nil
	}
	audience, _ := json.Marshal(c.TargetAudience)
	return &CampaignEntity{
		ID:              c.ID,
		UserID:          c.UserID,
		Name:            c.Name,
		Description:     c.Description,
		Type:            string(c.Type),
		Status:          string(c.Status),
		TargetAudience:  string(audience),
		MessageTemplate: c.MessageTemplate,
		ScheduledAt:     c.ScheduledAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	c := &model.Campaign{
		ID:              e.ID,
		UserID:          e.UserID,
		Name:            e.Name,
		Description:     e.Description,
		Type:            model.CampaignType(e.Type),
		Status:          model.CampaignStatus(e.Status),
		MessageTemplate: e.MessageTemplate,
		ScheduledAt:     e.ScheduledAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if e.TargetAudience != "" {
		_ = json.Unmarshal([]byte(e.TargetAudience), &c.TargetAudience)
	}
	return c
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	if entities == nil {
		return nil
	}
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
