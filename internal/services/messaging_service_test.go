package services

import (
	"context"
	"testing"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWhatsAppRepository struct {
	mock.Mock
}

func (m *MockWhatsAppRepository) CreateNumber(ctx context.Context, n *model.WhatsAppNumber) (*model.WhatsAppNumber, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppNumber), args.Error(1)
}

func (m *MockWhatsAppRepository) GetOwnedNumber(ctx context.Context, userID, id int64) (*model.WhatsAppNumber, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppNumber), args.Error(1)
}

func (m *MockWhatsAppRepository) ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WhatsAppNumber), args.Error(1)
}

func (m *MockWhatsAppRepository) GetTemplateByID(ctx context.Context, id int64) (*model.WhatsAppTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppTemplate), args.Error(1)
}

func (m *MockWhatsAppRepository) ListTemplates(ctx context.Context, numberID int64) ([]*model.WhatsAppTemplate, error) {
	args := m.Called(ctx, numberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WhatsAppTemplate), args.Error(1)
}

func (m *MockWhatsAppRepository) UpsertTemplate(ctx context.Context, t *model.WhatsAppTemplate) (*model.WhatsAppTemplate, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WhatsAppTemplate), args.Error(1)
}

type MockMessageCreator struct {
	mock.Mock
}

func (m *MockMessageCreator) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

type MockOutboundLeadRepository struct {
	mock.Mock
}

func (m *MockOutboundLeadRepository) FindByPhone(ctx context.Context, userID int64, phone string) (*model.Lead, error) {
	args := m.Called(ctx, userID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

type MockWindowChecker struct {
	mock.Mock
}

func (m *MockWindowChecker) WithinWindow(ctx context.Context, userID int64, phone string) (bool, error) {
	args := m.Called(ctx, userID, phone)
	return args.Bool(0), args.Error(1)
}

type messagingMocks struct {
	whatsapp *MockWhatsAppRepository
	messages *MockMessageCreator
	leads    *MockOutboundLeadRepository
	windows  *MockWindowChecker
}

func newMessagingService(t *testing.T) (*MessagingService, *messagingMocks) {
	m := &messagingMocks{
		whatsapp: new(MockWhatsAppRepository),
		messages: new(MockMessageCreator),
		leads:    new(MockOutboundLeadRepository),
		windows:  new(MockWindowChecker),
	}
	svc := NewMessagingService(m.whatsapp, m.messages, m.leads, m.windows, setupTestQueue(t))
	return svc, m
}

func ownedNumber() *model.WhatsAppNumber {
	return &model.WhatsAppNumber{ID: 5, UserID: 10, PhoneNumber: "+15550100", PhoneNumberID: "pnid-100", IsActive: true}
}

func approvedTemplate() *model.WhatsAppTemplate {
	return &model.WhatsAppTemplate{ID: 3, WhatsAppNumberID: 5, Name: "welcome_offer", Language: "en", Status: model.TemplateStatusApproved}
}

func TestMessagingService_RegisterNumber(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("CreateNumber", mock.Anything, mock.MatchedBy(func(n *model.WhatsAppNumber) bool {
		return n.IsActive && n.PhoneNumber == "+15550100"
	})).Return(ownedNumber(), nil)

	created, err := svc.RegisterNumber(context.Background(), model.WhatsAppNumberCreateRequest{
		UserID:        10,
		PhoneNumber:   "+15550100",
		PhoneNumberID: "pnid-100",
		AccessToken:   "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.ID)
}

func TestMessagingService_RegisterNumber_Duplicate(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("CreateNumber", mock.Anything, mock.Anything).Return(nil, repository.ErrDuplicate)

	_, err := svc.RegisterNumber(context.Background(), model.WhatsAppNumberCreateRequest{
		UserID:        10,
		PhoneNumber:   "+15550100",
		PhoneNumberID: "pnid-100",
		AccessToken:   "tok",
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMessagingService_SaveTemplate_ChecksOwnership(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(nil, repository.ErrNotFound)

	_, err := svc.SaveTemplate(context.Background(), 10, &model.WhatsAppTemplate{WhatsAppNumberID: 5, Name: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	m.whatsapp.AssertNotCalled(t, "UpsertTemplate")
}

func TestMessagingService_SaveTemplate_Defaults(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("UpsertTemplate", mock.Anything, mock.MatchedBy(func(tpl *model.WhatsAppTemplate) bool {
		return tpl.Language == "en" && tpl.Status == model.TemplateStatusPending
	})).Return(approvedTemplate(), nil)

	_, err := svc.SaveTemplate(context.Background(), 10, &model.WhatsAppTemplate{WhatsAppNumberID: 5, Name: "welcome_offer"})
	require.NoError(t, err)
	m.whatsapp.AssertExpectations(t)
}

func TestMessagingService_SendTemplate(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("GetTemplateByID", mock.Anything, int64(3)).Return(approvedTemplate(), nil)
	m.leads.On("FindByPhone", mock.Anything, int64(10), "+15550001").
		Return(&model.Lead{ID: 1, UserID: 10, PhoneNumber: "+15550001", ConsentGiven: true}, nil)
	m.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.Status == model.MessageStatusPending &&
			msg.Type == model.MessageTypeTemplate &&
			msg.Platform == model.PlatformWhatsApp &&
			msg.LeadID == 1
	})).Return(&model.Message{ID: 77, Status: model.MessageStatusPending}, nil)

	created, err := svc.SendTemplate(context.Background(), SendTemplateRequest{
		UserID:     10,
		NumberID:   5,
		TemplateID: 3,
		Recipient:  "+15550001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), created.ID)
	m.messages.AssertExpectations(t)
}

func TestMessagingService_SendTemplate_UnknownRecipient(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("GetTemplateByID", mock.Anything, int64(3)).Return(approvedTemplate(), nil)
	m.leads.On("FindByPhone", mock.Anything, int64(10), "+15559999").Return(nil, repository.ErrNotFound)

	_, err := svc.SendTemplate(context.Background(), SendTemplateRequest{
		UserID: 10, NumberID: 5, TemplateID: 3, Recipient: "+15559999",
	})
	assert.ErrorIs(t, err, model.ErrConsentViolation)
	m.messages.AssertNotCalled(t, "Create")
}

func TestMessagingService_SendTemplate_RequiresConsent(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("GetTemplateByID", mock.Anything, int64(3)).Return(approvedTemplate(), nil)
	m.leads.On("FindByPhone", mock.Anything, int64(10), "+15550001").
		Return(&model.Lead{ID: 1, UserID: 10, PhoneNumber: "+15550001", ConsentGiven: false}, nil)

	_, err := svc.SendTemplate(context.Background(), SendTemplateRequest{
		UserID: 10, NumberID: 5, TemplateID: 3, Recipient: "+15550001",
	})
	assert.ErrorIs(t, err, model.ErrConsentViolation)
	m.messages.AssertNotCalled(t, "Create")
}

func TestMessagingService_SendTemplate_RejectsUnapproved(t *testing.T) {
	svc, m := newMessagingService(t)

	pending := approvedTemplate()
	pending.Status = model.TemplateStatusPending

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("GetTemplateByID", mock.Anything, int64(3)).Return(pending, nil)

	_, err := svc.SendTemplate(context.Background(), SendTemplateRequest{
		UserID: 10, NumberID: 5, TemplateID: 3, Recipient: "+15550001",
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMessagingService_SendTemplate_RejectsForeignTemplate(t *testing.T) {
	svc, m := newMessagingService(t)

	foreign := approvedTemplate()
	foreign.WhatsAppNumberID = 99

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.whatsapp.On("GetTemplateByID", mock.Anything, int64(3)).Return(foreign, nil)

	_, err := svc.SendTemplate(context.Background(), SendTemplateRequest{
		UserID: 10, NumberID: 5, TemplateID: 3, Recipient: "+15550001",
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMessagingService_SendText_WindowClosed(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.windows.On("WithinWindow", mock.Anything, int64(10), "+15550001").Return(false, nil)

	_, err := svc.SendText(context.Background(), SendTextRequest{
		UserID: 10, NumberID: 5, Recipient: "+15550001", Body: "hi",
	})
	assert.ErrorIs(t, err, model.ErrOutsideMessagingWindow)
	m.messages.AssertNotCalled(t, "Create")
}

func TestMessagingService_SendText_WindowOpen(t *testing.T) {
	svc, m := newMessagingService(t)

	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.windows.On("WithinWindow", mock.Anything, int64(10), "+15550001").Return(true, nil)
	m.leads.On("FindByPhone", mock.Anything, int64(10), "+15550001").
		Return(&model.Lead{ID: 1, UserID: 10, PhoneNumber: "+15550001"}, nil)
	m.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.Type == model.MessageTypeText && msg.LeadID == 1 && msg.Content == "hi"
	})).Return(&model.Message{ID: 88, Status: model.MessageStatusPending}, nil)

	created, err := svc.SendText(context.Background(), SendTextRequest{
		UserID: 10, NumberID: 5, Recipient: "+15550001", Body: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(88), created.ID)
}

func TestMessagingService_SendText_UnknownRecipientAllowed(t *testing.T) {
	svc, m := newMessagingService(t)

	// Free-form replies inside an open window do not require a lead record.
	m.whatsapp.On("GetOwnedNumber", mock.Anything, int64(10), int64(5)).Return(ownedNumber(), nil)
	m.windows.On("WithinWindow", mock.Anything, int64(10), "+15559999").Return(true, nil)
	m.leads.On("FindByPhone", mock.Anything, int64(10), "+15559999").Return(nil, repository.ErrNotFound)
	m.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.LeadID == 0
	})).Return(&model.Message{ID: 89, Status: model.MessageStatusPending}, nil)

	_, err := svc.SendText(context.Background(), SendTextRequest{
		UserID: 10, NumberID: 5, Recipient: "+15559999", Body: "hello",
	})
	require.NoError(t, err)
}
