package repository

import (
	"context"
	"errors"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

type WhatsAppRepository struct {
	*pg.DB
}

func NewWhatsAppRepository(db *pg.DB) *WhatsAppRepository {
	return &WhatsAppRepository{
		db,
	}
}

func (r *WhatsAppRepository) CreateNumber(ctx context.Context, n *model.WhatsAppNumber) (*model.WhatsAppNumber, error) {
	var count int64
	err := r.Write(ctx).WithContext(ctx).
		Model(&WhatsAppNumberEntity{}).
		Where("phone_number = ?", n.PhoneNumber).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	entity := toWhatsAppNumberEntity(n)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toWhatsAppNumberModel(entity), nil
}

func (r *WhatsAppRepository) GetOwnedNumber(ctx context.Context, userID, id int64) (*model.WhatsAppNumber, error) {
	var entity WhatsAppNumberEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toWhatsAppNumberModel(&entity), nil
}

func (r *WhatsAppRepository) GetNumber(ctx context.Context, id int64) (*model.WhatsAppNumber, error) {
	var entity WhatsAppNumberEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toWhatsAppNumberModel(&entity), nil
}

func (r *WhatsAppRepository) ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error) {
	var entities []*WhatsAppNumberEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	numbers := make([]*model.WhatsAppNumber, len(entities))
	for i, e := range entities {
		numbers[i] = toWhatsAppNumberModel(e)
	}
	return numbers, nil
}

func (r *WhatsAppRepository) GetTemplate(ctx context.Context, numberID int64, name string) (*model.WhatsAppTemplate, error) {
	var entity WhatsAppTemplateEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("whatsapp_number_id = ? AND name = ?", numberID, name).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toWhatsAppTemplateModel(&entity), nil
}

func (r *WhatsAppRepository) GetTemplateByID(ctx context.Context, id int64) (*model.WhatsAppTemplate, error) {
	var entity WhatsAppTemplateEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toWhatsAppTemplateModel(&entity), nil
}

func (r *WhatsAppRepository) ListTemplates(ctx context.Context, numberID int64) ([]*model.WhatsAppTemplate, error) {
	var entities []*WhatsAppTemplateEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("whatsapp_number_id = ?", numberID).
		Order("name ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	templates := make([]*model.WhatsAppTemplate, len(entities))
	for i, e := range entities {
		templates[i] = toWhatsAppTemplateModel(e)
	}
	return templates, nil
}

// UpsertTemplate refreshes the local copy of a provider template, keyed by
// (number id, name). Used when syncing templates fetched from the Graph API.
func (r *WhatsAppRepository) UpsertTemplate(ctx context.Context, t *model.WhatsAppTemplate) (*model.WhatsAppTemplate, error) {
	var existing WhatsAppTemplateEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("whatsapp_number_id = ? AND name = ?", t.WhatsAppNumberID, t.Name).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entity := toWhatsAppTemplateEntity(t)
		if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
			return nil, err
		}
		return toWhatsAppTemplateModel(entity), nil
	}
	if err != nil {
		return nil, err
	}

	entity := toWhatsAppTemplateEntity(t)
	entity.ID = existing.ID
	entity.CreatedAt = existing.CreatedAt
	if err := r.Write(ctx).WithContext(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return toWhatsAppTemplateModel(entity), nil
}
