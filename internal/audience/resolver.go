package audience

import (
	"context"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/pg"
)

// Resolver translates a typed audience filter into a concrete lead set.
// Filters AND together; each multi-value filter ORs within itself. Results
// are always scoped to the owning user and materialized (the campaign needs a
// stable count before dispatch).
type Resolver struct {
	db *pg.DB
}

func NewResolver(db *pg.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, userID int64, f model.AudienceFilter) ([]*model.Lead, error) {
	q := r.db.Read(ctx).WithContext(ctx).
		Model(&repository.LeadEntity{}).
		Where("user_id = ?", userID)

	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(f.Statuses))
	}
	if len(f.Sources) > 0 {
		q = q.Where("source IN ?", sourceStrings(f.Sources))
	}
	if len(f.TagIDs) > 0 {
		// "some" semantics: at least one matching tag.
		q = q.Where("id IN (SELECT lead_id FROM lead_tags WHERE tag_id IN ?)", f.TagIDs)
	}
	if f.ConsentOnly {
		q = q.Where("consent_given = ?", true)
	}
	if f.DateRange != nil {
		if f.DateRange.Start != nil {
			q = q.Where("created_at >= ?", *f.DateRange.Start)
		}
		if f.DateRange.End != nil {
			q = q.Where("created_at <= ?", *f.DateRange.End)
		}
	}

	var entities []*repository.LeadEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}

	return repository.LeadModels(entities), nil
}

func statusStrings(statuses []model.LeadStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func sourceStrings(sources []model.LeadSource) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}
