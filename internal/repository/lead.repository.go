package repository

import (
	"context"
	"errors"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by
	// the caller.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("record already exists")
)

type LeadRepository struct {
	*pg.DB
}

func NewLeadRepository(db *pg.DB) *LeadRepository {
	return &LeadRepository{
		db,
	}
}

func (r *LeadRepository) Create(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	// Duplicate detection across the three identity fields.
	dup := r.Write(ctx).WithContext(ctx).Model(&LeadEntity{}).Where("user_id = ?", lead.UserID)
	var conds *gorm.DB
	if lead.Email != "" {
		conds = r.Write(ctx).Where("email = ?", lead.Email)
	}
	if lead.PhoneNumber != "" {
		c := r.Write(ctx).Where("phone_number = ?", lead.PhoneNumber)
		if conds == nil {
			conds = c
		} else {
			conds = conds.Or(c)
		}
	}
	if lead.FacebookUserID != "" {
		c := r.Write(ctx).Where("facebook_user_id = ?", lead.FacebookUserID)
		if conds == nil {
			conds = c
		} else {
			conds = conds.Or(c)
		}
	}
	if conds != nil {
		var count int64
		if err := dup.Where(conds).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrDuplicate
		}
	}

	entity := toLeadEntity(lead)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toLeadModel(entity), nil
}

func (r *LeadRepository) GetOwned(ctx context.Context, userID, id int64) (*model.Lead, error) {
	var entity LeadEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Tags").
		Where("id = ? AND user_id = ?", id, userID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toLeadModel(&entity), nil
}

// FindByPhone returns the caller's lead with the given phone number.
func (r *LeadRepository) FindByPhone(ctx context.Context, userID int64, phone string) (*model.Lead, error) {
	var entity LeadEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("user_id = ? AND phone_number = ?", userID, phone).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toLeadModel(&entity), nil
}

// UpsertByExternalID finds a lead by facebook user id or creates it; used by
// the engagement import job so it must tolerate replays.
func (r *LeadRepository) UpsertByExternalID(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	var entity LeadEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("user_id = ? AND facebook_user_id = ?", lead.UserID, lead.FacebookUserID).
		First(&entity).Error
	if err == nil {
		return toLeadModel(&entity), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := toLeadEntity(lead)
	if err := r.Write(ctx).WithContext(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return toLeadModel(created), nil
}

func (r *LeadRepository) UpdateConsent(ctx context.Context, userID, id int64, given bool, consentType model.ConsentType) error {
	updates := map[string]interface{}{
		"consent_given": given,
		"consent_type":  string(consentType),
	}
	if given {
		now := time.Now().UTC()
		updates["consent_timestamp"] = &now
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&LeadEntity{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastContact stamps the last inbound contact on every lead with the
// given phone number. The 24-hour free-text window is evaluated against this.
func (r *LeadRepository) TouchLastContact(ctx context.Context, phone string, at time.Time) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&LeadEntity{}).
		Where("phone_number = ?", phone).
		Update("last_contact_at", at).Error
}

func (r *LeadRepository) List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&LeadEntity{}).Where("user_id = ?", f.UserID)

	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Source != nil {
		q = q.Where("source = ?", string(*f.Source))
	}
	if f.ConsentOnly {
		q = q.Where("consent_given = ?", true)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where("email LIKE ? OR phone_number LIKE ? OR first_name LIKE ? OR last_name LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*LeadEntity
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toLeadModels(entities), total, nil
}
