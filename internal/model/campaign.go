package model

import (
	"fmt"
	"time"
)

type CampaignType string

const (
	CampaignTypeWhatsAppTemplate   CampaignType = "WHATSAPP_TEMPLATE"
	CampaignTypeMessengerBroadcast CampaignType = "MESSENGER_BROADCAST"
	CampaignTypeFollowUp           CampaignType = "FOLLOW_UP"
)

func (t CampaignType) Valid() bool {
	switch t {
	case CampaignTypeWhatsAppTemplate, CampaignTypeMessengerBroadcast, CampaignTypeFollowUp:
		return true
	}
	return false
}

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"
	CampaignStatusRunning   CampaignStatus = "RUNNING"
	CampaignStatusPaused    CampaignStatus = "PAUSED"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

// Campaign is a scheduled or immediate bulk-messaging operation over a
// resolved audience. Status RUNNING or COMPLETED implies StartedAt is set.
type Campaign struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"user_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Type            CampaignType   `json:"type"`
	Status          CampaignStatus `json:"status"`
	TargetAudience  AudienceFilter `json:"target_audience"`
	MessageTemplate string         `json:"message_template"`
	ScheduledAt     *time.Time     `json:"scheduled_at"`
	StartedAt       *time.Time     `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type CampaignCreateRequest struct {
	UserID          int64
	Name            string
	Description     string
	Type            CampaignType
	TargetAudience  AudienceFilter
	MessageTemplate string
	ScheduledAt     *time.Time
}

func (p CampaignCreateRequest) Validate() error {
	if p.UserID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: invalid campaign type %q", ErrValidation, p.Type)
	}
	if p.MessageTemplate == "" {
		return fmt.Errorf("%w: message_template is required", ErrValidation)
	}
	return nil
}

// CampaignUpdateRequest carries the mutable campaign fields. Nil pointers mean
// "leave unchanged". SetScheduledAt distinguishes clearing the schedule from
// not touching it.
type CampaignUpdateRequest struct {
	Name            *string
	Description     *string
	MessageTemplate *string
	TargetAudience  *AudienceFilter
	ScheduledAt     *time.Time
	SetScheduledAt  bool
}

// MessageStats are per-campaign message counters, denormalized for listings.
type MessageStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// CampaignPreview is the dry-run result for a campaign start.
type CampaignPreview struct {
	TotalLeads    int     `json:"total_leads"`
	EligibleLeads int     `json:"eligible_leads"`
	EstimatedCost float64 `json:"estimated_cost"`
	LeadsSample   []*Lead `json:"leads_sample"`
}

type CampaignFilter struct {
	UserID int64
	Status *CampaignStatus
	Type   *CampaignType
	Limit  int
	Offset int
}
