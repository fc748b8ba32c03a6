package repository

import (
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
)

type LeadEntity struct {
	ID               int64            `gorm:"primaryKey;autoIncrement;column:id"`
	UserID           int64            `gorm:"column:user_id;not null;index"`
	FirstName        string           `gorm:"column:first_name"`
	LastName         string           `gorm:"column:last_name"`
	Email            string           `gorm:"column:email;index"`
	PhoneNumber      string           `gorm:"column:phone_number;index"`
	FacebookUserID   string           `gorm:"column:facebook_user_id;index"`
	Source           string           `gorm:"column:source;not null"`
	Status           string           `gorm:"column:status;not null;index"`
	ConsentGiven     bool             `gorm:"column:consent_given;not null;default:false"`
	ConsentTimestamp *time.Time       `gorm:"column:consent_timestamp"`
	ConsentType      string           `gorm:"column:consent_type"`
	LastContactAt    *time.Time       `gorm:"column:last_contact_at"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	Tags             []*LeadTagEntity `gorm:"foreignKey:LeadID"`
}

func (LeadEntity) TableName() string {
	return "leads"
}

// LeadTagEntity is the lead<->tag join row. Audience tag filtering uses
// "some" semantics over this table.
type LeadTagEntity struct {
	LeadID int64 `gorm:"column:lead_id;primaryKey"`
	TagID  int64 `gorm:"column:tag_id;primaryKey;index"`
}

func (LeadTagEntity) TableName() string {
	return "lead_tags"
}

type TagEntity struct {
	ID     int64  `gorm:"primaryKey;autoIncrement;column:id"`
	UserID int64  `gorm:"column:user_id;not null;index"`
	Name   string `gorm:"column:name;not null"`
}

func (TagEntity) TableName() string {
	return "tags"
}

func toLeadEntity(l *model.Lead) *LeadEntity {
	if l == nil {
		return nil
	}
	e := &LeadEntity{
		ID:               l.ID,
		UserID:           l.UserID,
		FirstName:        l.FirstName,
		LastName:         l.LastName,
		Email:            l.Email,
		PhoneNumber:      l.PhoneNumber,
		FacebookUserID:   l.FacebookUserID,
		Source:           string(l.Source),
		Status:           string(l.Status),
		ConsentGiven:     l.ConsentGiven,
		ConsentTimestamp: l.ConsentTimestamp,
		ConsentType:      string(l.ConsentType),
		LastContactAt:    l.LastContactAt,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
	for _, tagID := range l.TagIDs {
		e.Tags = append(e.Tags, &LeadTagEntity{TagID: tagID})
	}
	return e
}

func toLeadModel(e *LeadEntity) *model.Lead {
	if e == nil {
		return nil
	}
	m := &model.Lead{
		ID:               e.ID,
		UserID:           e.UserID,
		FirstName:        e.FirstName,
		LastName:         e.LastName,
		Email:            e.Email,
		PhoneNumber:      e.PhoneNumber,
		FacebookUserID:   e.FacebookUserID,
		Source:           model.LeadSource(e.Source),
		Status:           model.LeadStatus(e.Status),
		ConsentGiven:     e.ConsentGiven,
		ConsentTimestamp: e.ConsentTimestamp,
		ConsentType:      model.ConsentType(e.ConsentType),
		LastContactAt:    e.LastContactAt,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	for _, tag := range e.Tags {
		m.TagIDs = append(m.TagIDs, tag.TagID)
	}
	return m
}

func toLeadModels(entities []*LeadEntity) []*model.Lead {
	if entities == nil {
		return nil
	}
	models := make([]*model.Lead, len(entities))
	for i, e := range entities {
		models[i] = toLeadModel(e)
	}
	return models
}

// LeadModels converts lead entities to domain models. Exported for the
// audience resolver, which queries the leads table directly.
func LeadModels(entities []*LeadEntity) []*model.Lead {
	return toLeadModels(entities)
}
