package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gateway "github.com/leadflow/campaign-gateway/internal/gateways"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	args := m.Called(ctx, id, providerMessageID, sentAt)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockMessageRepo) PendingCount(ctx context.Context, campaignID int64) (int64, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(int64), args.Error(1)
}

type MockLeadRepo struct {
	mock.Mock
}

func (m *MockLeadRepo) UpsertByExternalID(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	args := m.Called(ctx, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

type MockWhatsAppRepo struct {
	mock.Mock
}

func (m *MockWhatsAppRepo) GetNumber(ctx context.Context, id int64) (*model.WhatsAppNumber, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppNumber), args.Error(1)
}

func (m *MockWhatsAppRepo) GetTemplateByID(ctx context.Context, id int64) (*model.WhatsAppTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppTemplate), args.Error(1)
}

func (m *MockWhatsAppRepo) GetTemplate(ctx context.Context, numberID int64, name string) (*model.WhatsAppTemplate, error) {
	args := m.Called(ctx, numberID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppTemplate), args.Error(1)
}

func (m *MockWhatsAppRepo) ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WhatsAppNumber), args.Error(1)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) MarkCompleted(ctx context.Context, userID, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

type MockGraphSender struct {
	mock.Mock
}

func (m *MockGraphSender) SendTemplate(ctx context.Context, number *model.WhatsAppNumber, tpl *model.WhatsAppTemplate, to string, params []string) (*gateway.SendResult, error) {
	args := m.Called(ctx, number, tpl, to, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockGraphSender) SendText(ctx context.Context, number *model.WhatsAppNumber, to, text string) (*gateway.SendResult, error) {
	args := m.Called(ctx, number, to, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockGraphSender) SendMessenger(ctx context.Context, pageAccessToken, recipientID, text string) (*gateway.SendResult, error) {
	args := m.Called(ctx, pageAccessToken, recipientID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockGraphSender) FetchEngagers(ctx context.Context, pageAccessToken, objectID string) ([]gateway.Engager, error) {
	args := m.Called(ctx, pageAccessToken, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Engager), args.Error(1)
}

func jobFor(t *testing.T, kind string, payload interface{}) *queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Kind: kind, Data: data, MaxAttempts: 3}
}

func campaignID(id int64) *int64 { return &id }

func TestJobProcessor_CampaignMessage_Messenger(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	sender := new(MockGraphSender)
	completer := new(MockCompleter)
	p := NewJobProcessor(msgRepo, nil, nil, completer, sender, "page-token")

	msg := &model.Message{
		ID:         5,
		CampaignID: campaignID(2),
		Platform:   model.PlatformMessenger,
		Type:       model.MessageTypeText,
		Recipient:  "psid-9",
		Content:    "Hi Ana",
		Status:     model.MessageStatusPending,
	}

	msgRepo.On("GetByID", ctx, int64(5)).Return(msg, nil)
	sender.On("SendMessenger", ctx, "page-token", "psid-9", "Hi Ana").
		Return(&gateway.SendResult{ProviderMessageID: "mid.1"}, nil)
	msgRepo.On("MarkSent", ctx, int64(5), "mid.1", mock.AnythingOfType("time.Time")).Return(nil)
	msgRepo.On("PendingCount", ctx, int64(2)).Return(int64(0), nil)
	completer.On("MarkCompleted", ctx, int64(10), int64(2)).Return(nil)

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{
		MessageID: 5, CampaignID: 2, LeadID: 1, UserID: 10,
	})

	require.NoError(t, p.Process(ctx, job))
	msgRepo.AssertExpectations(t)
	completer.AssertExpectations(t)
}

func TestJobProcessor_CampaignMessage_SkipsNonPending(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	sender := new(MockGraphSender)
	p := NewJobProcessor(msgRepo, nil, nil, nil, sender, "")

	msgRepo.On("GetByID", ctx, int64(5)).Return(&model.Message{
		ID:     5,
		Status: model.MessageStatusFailed,
	}, nil)

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{MessageID: 5})
	require.NoError(t, p.Process(ctx, job))
	sender.AssertNotCalled(t, "SendMessenger")
	sender.AssertNotCalled(t, "SendText")
}

func TestJobProcessor_CampaignMessage_RetryableErrorPropagates(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	sender := new(MockGraphSender)
	p := NewJobProcessor(msgRepo, nil, nil, nil, sender, "page-token")

	msg := &model.Message{
		ID:        5,
		Platform:  model.PlatformMessenger,
		Recipient: "psid-9",
		Content:   "Hi",
		Status:    model.MessageStatusPending,
	}

	msgRepo.On("GetByID", ctx, int64(5)).Return(msg, nil)
	sender.On("SendMessenger", ctx, "page-token", "psid-9", "Hi").
		Return(nil, &gateway.StatusError{Code: 503})

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{MessageID: 5, UserID: 10})
	err := p.Process(ctx, job)
	require.Error(t, err)
	msgRepo.AssertNotCalled(t, "MarkFailed")
}

func TestJobProcessor_CampaignMessage_PermanentErrorSettles(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	sender := new(MockGraphSender)
	completer := new(MockCompleter)
	p := NewJobProcessor(msgRepo, nil, nil, completer, sender, "page-token")

	msg := &model.Message{
		ID:         5,
		CampaignID: campaignID(2),
		Platform:   model.PlatformMessenger,
		Recipient:  "psid-9",
		Content:    "Hi",
		Status:     model.MessageStatusPending,
	}

	msgRepo.On("GetByID", ctx, int64(5)).Return(msg, nil)
	sender.On("SendMessenger", ctx, "page-token", "psid-9", "Hi").
		Return(nil, &gateway.StatusError{Code: 400, Body: "invalid recipient"})
	msgRepo.On("MarkFailed", ctx, int64(5), mock.AnythingOfType("string")).Return(nil)
	msgRepo.On("PendingCount", ctx, int64(2)).Return(int64(3), nil)

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{MessageID: 5, CampaignID: 2, UserID: 10})

	// Permanent rejection is acknowledged, not retried.
	require.NoError(t, p.Process(ctx, job))
	msgRepo.AssertExpectations(t)
	completer.AssertNotCalled(t, "MarkCompleted")
}

func TestJobProcessor_CampaignMessage_WhatsAppTemplate(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	waRepo := new(MockWhatsAppRepo)
	sender := new(MockGraphSender)
	p := NewJobProcessor(msgRepo, nil, waRepo, nil, sender, "")

	number := &model.WhatsAppNumber{ID: 7, UserID: 10, PhoneNumberID: "1000001", IsActive: true}
	tpl := &model.WhatsAppTemplate{ID: 3, WhatsAppNumberID: 7, Name: "spring_promo", Language: "en_US"}

	msg := &model.Message{
		ID:        5,
		Platform:  model.PlatformWhatsApp,
		Type:      model.MessageTypeTemplate,
		Recipient: "+15550200",
		Content:   "spring_promo",
		Status:    model.MessageStatusPending,
	}

	msgRepo.On("GetByID", ctx, int64(5)).Return(msg, nil)
	waRepo.On("ListNumbers", ctx, int64(10)).Return([]*model.WhatsAppNumber{
		{ID: 6, UserID: 10, IsActive: false},
		number,
	}, nil)
	waRepo.On("GetTemplate", ctx, int64(7), "spring_promo").Return(tpl, nil)
	sender.On("SendTemplate", ctx, number, tpl, "+15550200", []string(nil)).
		Return(&gateway.SendResult{ProviderMessageID: "wamid.x"}, nil)
	msgRepo.On("MarkSent", ctx, int64(5), "wamid.x", mock.AnythingOfType("time.Time")).Return(nil)

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{MessageID: 5, UserID: 10})
	require.NoError(t, p.Process(ctx, job))
	waRepo.AssertExpectations(t)
}

func TestJobProcessor_DirectTemplateSend(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	waRepo := new(MockWhatsAppRepo)
	sender := new(MockGraphSender)
	p := NewJobProcessor(msgRepo, nil, waRepo, nil, sender, "")

	number := &model.WhatsAppNumber{ID: 7, UserID: 10, PhoneNumberID: "1000001"}
	tpl := &model.WhatsAppTemplate{ID: 3, Name: "welcome", Language: "en_US"}

	msgRepo.On("GetByID", ctx, int64(8)).Return(&model.Message{
		ID:     8,
		Status: model.MessageStatusPending,
	}, nil)
	waRepo.On("GetNumber", ctx, int64(7)).Return(number, nil)
	waRepo.On("GetTemplateByID", ctx, int64(3)).Return(tpl, nil)
	sender.On("SendTemplate", ctx, number, tpl, "+15550300", []string{"Ana"}).
		Return(&gateway.SendResult{ProviderMessageID: "wamid.y"}, nil)
	msgRepo.On("MarkSent", ctx, int64(8), "wamid.y", mock.AnythingOfType("time.Time")).Return(nil)

	job := jobFor(t, KindWhatsAppTemplate, WhatsAppTemplatePayload{
		MessageID: 8, NumberID: 7, TemplateID: 3, Recipient: "+15550300", Parameters: []string{"Ana"},
	})
	require.NoError(t, p.Process(ctx, job))
}

func TestJobProcessor_ImportEngagement(t *testing.T) {
	ctx := context.Background()

	leadRepo := new(MockLeadRepo)
	sender := new(MockGraphSender)
	p := NewJobProcessor(nil, leadRepo, nil, nil, sender, "page-token")

	sender.On("FetchEngagers", ctx, "page-token", "post-1").Return([]gateway.Engager{
		{FacebookUserID: "u1", Name: "Ana Silva"},
		{FacebookUserID: "u2", Name: "Ben"},
	}, nil)
	leadRepo.On("UpsertByExternalID", ctx, mock.AnythingOfType("*model.Lead")).
		Return(&model.Lead{ID: 1}, nil)

	job := jobFor(t, KindImportEngagement, ImportEngagementPayload{
		UserID: 10, ObjectID: "post-1", Source: string(model.LeadSourceFacebookComment),
	})

	require.NoError(t, p.Process(ctx, job))
	leadRepo.AssertNumberOfCalls(t, "UpsertByExternalID", 2)

	first := leadRepo.Calls[0].Arguments.Get(1).(*model.Lead)
	assert.Equal(t, "Ana", first.FirstName)
	assert.Equal(t, "Silva", first.LastName)
	assert.Equal(t, model.LeadSourceFacebookComment, first.Source)
	assert.False(t, first.ConsentGiven)
}

func TestJobProcessor_HandleFailure(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepo)
	completer := new(MockCompleter)
	p := NewJobProcessor(msgRepo, nil, nil, completer, nil, "")

	msgRepo.On("MarkFailed", ctx, int64(5), mock.AnythingOfType("string")).Return(nil)
	msgRepo.On("PendingCount", ctx, int64(2)).Return(int64(0), nil)
	completer.On("MarkCompleted", ctx, int64(10), int64(2)).Return(nil)

	job := jobFor(t, KindCampaignMessage, CampaignMessagePayload{MessageID: 5, CampaignID: 2, UserID: 10})
	p.HandleFailure(ctx, job, assert.AnError)

	msgRepo.AssertExpectations(t)
	completer.AssertExpectations(t)
}

func TestJobProcessor_UnknownKindAcked(t *testing.T) {
	p := NewJobProcessor(nil, nil, nil, nil, nil, "")
	job := &queue.Job{ID: "j", Kind: "mystery", Data: []byte(`{}`)}
	assert.NoError(t, p.Process(context.Background(), job))
}

func TestSplitName(t *testing.T) {
	first, last := splitName("Ana Silva")
	assert.Equal(t, "Ana", first)
	assert.Equal(t, "Silva", last)

	first, last = splitName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Equal(t, "", last)

	first, last = splitName("Ana Maria Silva")
	assert.Equal(t, "Ana Maria", first)
	assert.Equal(t, "Silva", last)
}
