package services

import (
	"context"
	"fmt"

	"github.com/leadflow/campaign-gateway/internal/consent"
	"github.com/leadflow/campaign-gateway/internal/dispatch"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/logger"
)

type WhatsAppRepository interface {
	CreateNumber(ctx context.Context, n *model.WhatsAppNumber) (*model.WhatsAppNumber, error)
	GetOwnedNumber(ctx context.Context, userID, id int64) (*model.WhatsAppNumber, error)
	ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error)
	GetTemplateByID(ctx context.Context, id int64) (*model.WhatsAppTemplate, error)
	ListTemplates(ctx context.Context, numberID int64) ([]*model.WhatsAppTemplate, error)
	UpsertTemplate(ctx context.Context, t *model.WhatsAppTemplate) (*model.WhatsAppTemplate, error)
}

type MessageCreator interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
}

type OutboundLeadRepository interface {
	FindByPhone(ctx context.Context, userID int64, phone string) (*model.Lead, error)
}

// WindowChecker reports whether a free-form WhatsApp message to the phone
// number is allowed right now under the 24-hour session rule.
type WindowChecker interface {
	WithinWindow(ctx context.Context, userID int64, phone string) (bool, error)
}

// MessagingService owns WhatsApp number registration, template bookkeeping
// and direct (non-campaign) sends. Sends are gated here, before a message row
// exists: templates require recorded opt-in, free-form texts require an open
// session window.
type MessagingService struct {
	whatsappRepo WhatsAppRepository
	messageRepo  MessageCreator
	leadRepo     OutboundLeadRepository
	windows      WindowChecker
	directQueue  *queue.Queue
}

func NewMessagingService(
	whatsappRepo WhatsAppRepository,
	messageRepo MessageCreator,
	leadRepo OutboundLeadRepository,
	windows WindowChecker,
	directQueue *queue.Queue,
) *MessagingService {
	return &MessagingService{
		whatsappRepo: whatsappRepo,
		messageRepo:  messageRepo,
		leadRepo:     leadRepo,
		windows:      windows,
		directQueue:  directQueue,
	}
}

func (s *MessagingService) RegisterNumber(ctx context.Context, p model.WhatsAppNumberCreateRequest) (*model.WhatsAppNumber, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	number := &model.WhatsAppNumber{
		UserID:            p.UserID,
		PhoneNumber:       p.PhoneNumber,
		PhoneNumberID:     p.PhoneNumberID,
		DisplayName:       p.DisplayName,
		BusinessAccountID: p.BusinessAccountID,
		AccessToken:       p.AccessToken,
		IsActive:          true,
	}
	created, err := s.whatsappRepo.CreateNumber(ctx, number)
	if err == repository.ErrDuplicate {
		return nil, fmt.Errorf("%w: phone number is already registered", model.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("whatsapp number registered", "user_id", p.UserID, "number_id", created.ID)
	return created, nil
}

func (s *MessagingService) ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error) {
	return s.whatsappRepo.ListNumbers(ctx, userID)
}

// SaveTemplate records or refreshes a provider template under a number the
// caller owns.
func (s *MessagingService) SaveTemplate(ctx context.Context, userID int64, t *model.WhatsAppTemplate) (*model.WhatsAppTemplate, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: template name is required", model.ErrValidation)
	}
	if _, err := s.whatsappRepo.GetOwnedNumber(ctx, userID, t.WhatsAppNumberID); err != nil {
		return nil, err
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if t.Status == "" {
		t.Status = model.TemplateStatusPending
	}
	return s.whatsappRepo.UpsertTemplate(ctx, t)
}

func (s *MessagingService) ListTemplates(ctx context.Context, userID, numberID int64) ([]*model.WhatsAppTemplate, error) {
	if _, err := s.whatsappRepo.GetOwnedNumber(ctx, userID, numberID); err != nil {
		return nil, err
	}
	return s.whatsappRepo.ListTemplates(ctx, numberID)
}

type SendTemplateRequest struct {
	UserID     int64
	NumberID   int64
	TemplateID int64
	Recipient  string
	Parameters []string
}

// SendTemplate queues a direct template message. The recipient must be a
// known lead of the caller with recorded opt-in; templates are never sent to
// raw phone numbers.
func (s *MessagingService) SendTemplate(ctx context.Context, p SendTemplateRequest) (*model.Message, error) {
	if p.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", model.ErrValidation)
	}
	number, err := s.whatsappRepo.GetOwnedNumber(ctx, p.UserID, p.NumberID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.whatsappRepo.GetTemplateByID(ctx, p.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl.WhatsAppNumberID != number.ID {
		return nil, fmt.Errorf("%w: template does not belong to this number", model.ErrValidation)
	}
	if tmpl.Status != model.TemplateStatusApproved {
		return nil, fmt.Errorf("%w: template %q is not approved", model.ErrValidation, tmpl.Name)
	}

	lead, err := s.leadRepo.FindByPhone(ctx, p.UserID, p.Recipient)
	if err == repository.ErrNotFound {
		return nil, fmt.Errorf("%w: recipient is not a known lead", model.ErrConsentViolation)
	}
	if err != nil {
		return nil, err
	}
	if !consent.IsEligible(lead, model.CampaignTypeWhatsAppTemplate) {
		return nil, fmt.Errorf("%w: lead %d has not opted in", model.ErrConsentViolation, lead.ID)
	}

	msg := &model.Message{
		LeadID:             lead.ID,
		WhatsAppNumberID:   &number.ID,
		WhatsAppTemplateID: &tmpl.ID,
		Type:               model.MessageTypeTemplate,
		Platform:           model.PlatformWhatsApp,
		Recipient:          p.Recipient,
		Content:            tmpl.Name,
		Status:             model.MessageStatusPending,
	}
	created, err := s.messageRepo.Create(ctx, msg)
	if err != nil {
		return nil, err
	}

	payload := dispatch.WhatsAppTemplatePayload{
		MessageID:  created.ID,
		NumberID:   number.ID,
		TemplateID: tmpl.ID,
		Recipient:  p.Recipient,
		Parameters: p.Parameters,
	}
	if _, err := s.directQueue.Enqueue(ctx, dispatch.KindWhatsAppTemplate, payload, dispatch.DefaultOptions(dispatch.KindWhatsAppTemplate)); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}
	return created, nil
}

type SendTextRequest struct {
	UserID    int64
	NumberID  int64
	Recipient string
	Body      string
}

// SendText queues a free-form message. Allowed only while the recipient's
// 24-hour session window is open.
func (s *MessagingService) SendText(ctx context.Context, p SendTextRequest) (*model.Message, error) {
	if p.Recipient == "" || p.Body == "" {
		return nil, fmt.Errorf("%w: recipient and body are required", model.ErrValidation)
	}
	number, err := s.whatsappRepo.GetOwnedNumber(ctx, p.UserID, p.NumberID)
	if err != nil {
		return nil, err
	}

	open, err := s.windows.WithinWindow(ctx, p.UserID, p.Recipient)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, fmt.Errorf("%w: no inbound message from %s in the last 24 hours", model.ErrOutsideMessagingWindow, p.Recipient)
	}

	var leadID int64
	if lead, err := s.leadRepo.FindByPhone(ctx, p.UserID, p.Recipient); err == nil {
		leadID = lead.ID
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	msg := &model.Message{
		LeadID:           leadID,
		WhatsAppNumberID: &number.ID,
		Type:             model.MessageTypeText,
		Platform:         model.PlatformWhatsApp,
		Recipient:        p.Recipient,
		Content:          p.Body,
		Status:           model.MessageStatusPending,
	}
	created, err := s.messageRepo.Create(ctx, msg)
	if err != nil {
		return nil, err
	}

	payload := dispatch.WhatsAppTextPayload{
		MessageID: created.ID,
		NumberID:  number.ID,
		Recipient: p.Recipient,
		Body:      p.Body,
	}
	if _, err := s.directQueue.Enqueue(ctx, dispatch.KindWhatsAppText, payload, dispatch.DefaultOptions(dispatch.KindWhatsAppText)); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}
	return created, nil
}
