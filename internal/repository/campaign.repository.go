package repository

import (
	"context"
	"errors"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity := toCampaignEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) GetOwned(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

// Save persists all mutable campaign fields.
func (r *CampaignRepository) Save(ctx context.Context, c *model.Campaign) error {
	entity := toCampaignEntity(c)
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND user_id = ?", c.ID, c.UserID).
		Updates(map[string]interface{}{
			"name":             entity.Name,
			"description":      entity.Description,
			"message_template": entity.MessageTemplate,
			"target_audience":  entity.TargetAudience,
			"status":           entity.Status,
			"scheduled_at":     entity.ScheduledAt,
			"started_at":       entity.StartedAt,
			"completed_at":     entity.CompletedAt,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimStart atomically moves a DRAFT or SCHEDULED campaign to RUNNING,
// stamping started_at and clearing the schedule. Returns false when another
// writer already moved the campaign out of a startable status.
func (r *CampaignRepository) ClaimStart(ctx context.Context, userID, id int64, startedAt time.Time) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, []string{
			string(model.CampaignStatusDraft),
			string(model.CampaignStatusScheduled),
		}).
		Updates(map[string]interface{}{
			"status":       string(model.CampaignStatusRunning),
			"started_at":   startedAt,
			"scheduled_at": nil,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *CampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CampaignEntity{}).Where("user_id = ?", f.UserID)

	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Type != nil {
		q = q.Where("type = ?", string(*f.Type))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*CampaignEntity
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCampaignModels(entities), total, nil
}

// MessageStats aggregates message counters for one campaign.
func (r *CampaignRepository) MessageStats(ctx context.Context, campaignID int64) (*model.MessageStats, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.Read(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &model.MessageStats{}
	for _, rw := range rows {
		stats.Total += rw.N
		switch model.MessageStatus(rw.Status) {
		case model.MessageStatusPending:
			stats.Pending = rw.N
		case model.MessageStatusSent:
			stats.Sent = rw.N
		case model.MessageStatusDelivered:
			stats.Delivered = rw.N
		case model.MessageStatusFailed:
			stats.Failed = rw.N
		}
	}
	return stats, nil
}

// ListDueScheduled returns SCHEDULED campaigns whose scheduled_at is at or
// before the given time. Used by the dispatcher's schedule sweep.
func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	var entities []*CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(model.CampaignStatusScheduled), now).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}
