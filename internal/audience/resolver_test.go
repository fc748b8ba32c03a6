package audience

import (
	"context"
	"testing"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"github.com/leadflow/campaign-gateway/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLead(t *testing.T, db *pg.DB, e *repository.LeadEntity) *repository.LeadEntity {
	t.Helper()
	require.NoError(t, db.Write(context.Background()).Create(e).Error)
	return e
}

func TestResolver_ScopesToUser(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	mine := seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+111", Source: "MANUAL", Status: "NEW"})
	seedLead(t, db, &repository.LeadEntity{UserID: 2, PhoneNumber: "+222", Source: "MANUAL", Status: "NEW"})

	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, mine.ID, leads[0].ID)
}

func TestResolver_StatusAndSourceFilters(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+1", Source: "MANUAL", Status: "NEW"})
	seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+2", Source: "WEB_FORM", Status: "QUALIFIED"})
	seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+3", Source: "FACEBOOK_COMMENT", Status: "CONTACTED"})

	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{
		Statuses: []model.LeadStatus{model.LeadStatusNew, model.LeadStatusQualified},
	})
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	leads, err = resolver.Resolve(ctx, 1, model.AudienceFilter{
		Sources: []model.LeadSource{model.LeadSourceWebForm},
	})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "+2", leads[0].PhoneNumber)

	// Filters AND together.
	leads, err = resolver.Resolve(ctx, 1, model.AudienceFilter{
		Statuses: []model.LeadStatus{model.LeadStatusQualified},
		Sources:  []model.LeadSource{model.LeadSourceManual},
	})
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestResolver_TagFilterSomeSemantics(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	vip := &repository.TagEntity{UserID: 1, Name: "vip"}
	newsletter := &repository.TagEntity{UserID: 1, Name: "newsletter"}
	require.NoError(t, db.Write(ctx).Create(vip).Error)
	require.NoError(t, db.Write(ctx).Create(newsletter).Error)

	tagged := seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+1", Source: "MANUAL", Status: "NEW"})
	both := seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+2", Source: "MANUAL", Status: "NEW"})
	seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+3", Source: "MANUAL", Status: "NEW"})

	require.NoError(t, db.Write(ctx).Create(&repository.LeadTagEntity{LeadID: tagged.ID, TagID: vip.ID}).Error)
	require.NoError(t, db.Write(ctx).Create(&repository.LeadTagEntity{LeadID: both.ID, TagID: vip.ID}).Error)
	require.NoError(t, db.Write(ctx).Create(&repository.LeadTagEntity{LeadID: both.ID, TagID: newsletter.ID}).Error)

	// A lead matches when it has at least one of the requested tags.
	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{TagIDs: []int64{vip.ID}})
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	leads, err = resolver.Resolve(ctx, 1, model.AudienceFilter{TagIDs: []int64{newsletter.ID}})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, both.ID, leads[0].ID)
}

func TestResolver_ConsentOnly(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	helpers.CreateTestLead(t, db, 1, "+1", true)
	helpers.CreateTestLead(t, db, 1, "+2", false)

	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{ConsentOnly: true})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "+1", leads[0].PhoneNumber)
	assert.True(t, leads[0].ConsentGiven)
}

func TestResolver_DateRange(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	old := seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+1", Source: "MANUAL", Status: "NEW"})
	recent := seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: "+2", Source: "MANUAL", Status: "NEW"})

	lastWeek := time.Now().UTC().Add(-7 * 24 * time.Hour)
	require.NoError(t, db.Write(ctx).
		Model(&repository.LeadEntity{}).
		Where("id = ?", old.ID).
		Update("created_at", lastWeek).Error)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{
		DateRange: &model.DateRange{Start: &cutoff},
	})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, recent.ID, leads[0].ID)

	leads, err = resolver.Resolve(ctx, 1, model.AudienceFilter{
		DateRange: &model.DateRange{End: &cutoff},
	})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, old.ID, leads[0].ID)
}

func TestResolver_ResultsOrderedByID(t *testing.T) {
	db := helpers.SetupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	for _, phone := range []string{"+3", "+1", "+2"} {
		seedLead(t, db, &repository.LeadEntity{UserID: 1, PhoneNumber: phone, Source: "MANUAL", Status: "NEW"})
	}

	leads, err := resolver.Resolve(ctx, 1, model.AudienceFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 3)
	for i := 1; i < len(leads); i++ {
		assert.Greater(t, leads[i].ID, leads[i-1].ID)
	}
}
