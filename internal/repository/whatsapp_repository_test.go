package repository

import (
	"context"
	"testing"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNumber(userID int64, phone string) *model.WhatsAppNumber {
	return &model.WhatsAppNumber{
		UserID:        userID,
		PhoneNumber:   phone,
		PhoneNumberID: "pnid-" + phone,
		DisplayName:   "Support",
		AccessToken:   "token-secret",
		IsActive:      true,
	}
}

func TestWhatsAppRepository_CreateNumber(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	created, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990000"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)

	// Registration is unique by phone number across all users.
	_, err = repo.CreateNumber(ctx, newNumber(2, "+5511999990000"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestWhatsAppRepository_GetOwnedNumber(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	created, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990001"))
	require.NoError(t, err)

	got, err := repo.GetOwnedNumber(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "+5511999990001", got.PhoneNumber)

	_, err = repo.GetOwnedNumber(ctx, 2, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	unscoped, err := repo.GetNumber(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, unscoped.ID)
}

func TestWhatsAppRepository_ListNumbers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	_, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990002"))
	require.NoError(t, err)
	_, err = repo.CreateNumber(ctx, newNumber(1, "+5511999990003"))
	require.NoError(t, err)
	_, err = repo.CreateNumber(ctx, newNumber(2, "+5511999990004"))
	require.NoError(t, err)

	numbers, err := repo.ListNumbers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, numbers, 2)
}

func TestWhatsAppRepository_Templates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	number, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990005"))
	require.NoError(t, err)

	created, err := repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{
		WhatsAppNumberID: number.ID,
		Name:             "welcome_offer",
		Language:         "en",
		Status:           model.TemplateStatusPending,
		Category:         "MARKETING",
		Components:       []string{"BODY"},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	byName, err := repo.GetTemplate(ctx, number.ID, "welcome_offer")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	byID, err := repo.GetTemplateByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "welcome_offer", byID.Name)

	_, err = repo.GetTemplate(ctx, number.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWhatsAppRepository_UpsertTemplateUpdatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	number, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990006"))
	require.NoError(t, err)

	first, err := repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{
		WhatsAppNumberID: number.ID,
		Name:             "order_update",
		Language:         "en",
		Status:           model.TemplateStatusPending,
	})
	require.NoError(t, err)

	// Re-syncing the same template name updates the row rather than
	// creating a second one.
	second, err := repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{
		WhatsAppNumberID: number.ID,
		Name:             "order_update",
		Language:         "pt_BR",
		Status:           model.TemplateStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
	assert.Equal(t, model.TemplateStatusApproved, second.Status)
	assert.Equal(t, "pt_BR", second.Language)

	templates, err := repo.ListTemplates(ctx, number.ID)
	require.NoError(t, err)
	assert.Len(t, templates, 1)
}

func TestWhatsAppRepository_ListTemplatesScopedToNumber(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWhatsAppRepository(db.DB)
	ctx := context.Background()

	first, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990007"))
	require.NoError(t, err)
	second, err := repo.CreateNumber(ctx, newNumber(1, "+5511999990008"))
	require.NoError(t, err)

	_, err = repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{WhatsAppNumberID: first.ID, Name: "a", Language: "en"})
	require.NoError(t, err)
	_, err = repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{WhatsAppNumberID: first.ID, Name: "b", Language: "en"})
	require.NoError(t, err)
	_, err = repo.UpsertTemplate(ctx, &model.WhatsAppTemplate{WhatsAppNumberID: second.ID, Name: "a", Language: "en"})
	require.NoError(t, err)

	templates, err := repo.ListTemplates(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, templates, 2)
}
