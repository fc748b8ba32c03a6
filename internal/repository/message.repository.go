package repository

import (
	"context"
	"errors"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// GetByProviderID resolves the provider-message-id mapping persisted at send
// time. Delivery callbacks are keyed by this id.
func (r *MessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// MarkSent records a successful send attempt and the provider id mapping.
func (r *MessageRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":              string(model.MessageStatusSent),
			"provider_message_id": providerMessageID,
			"error_message":       "",
			"sent_at":             sentAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(model.MessageStatusFailed),
			"error_message": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(model.MessageStatusDelivered),
			"delivered_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPending bulk-fails all still-pending messages of a campaign. Messages
// already SENT, DELIVERED or FAILED are untouched. Returns rows affected.
func (r *MessageRepository) CancelPending(ctx context.Context, campaignID int64, reason string) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("campaign_id = ? AND status = ?", campaignID, string(model.MessageStatusPending)).
		Updates(map[string]interface{}{
			"status":        string(model.MessageStatusFailed),
			"error_message": reason,
		})
	return res.RowsAffected, res.Error
}

func (r *MessageRepository) PendingCount(ctx context.Context, campaignID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("campaign_id = ? AND status = ?", campaignID, string(model.MessageStatusPending)).
		Count(&count).Error
	return count, err
}

func (r *MessageRepository) ListByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*model.Message, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageEntity{}).Where("campaign_id = ?", campaignID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageEntity
	if err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}
	return toMessageModels(entities), total, nil
}
