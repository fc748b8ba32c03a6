package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gateway "github.com/leadflow/campaign-gateway/internal/gateways"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/prom"
)

type MessageRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	PendingCount(ctx context.Context, campaignID int64) (int64, error)
}

type LeadRepository interface {
	UpsertByExternalID(ctx context.Context, lead *model.Lead) (*model.Lead, error)
}

type WhatsAppRepository interface {
	GetNumber(ctx context.Context, id int64) (*model.WhatsAppNumber, error)
	GetTemplateByID(ctx context.Context, id int64) (*model.WhatsAppTemplate, error)
	GetTemplate(ctx context.Context, numberID int64, name string) (*model.WhatsAppTemplate, error)
	ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error)
}

// CampaignCompleter closes out a campaign once its last message settles.
// Satisfied by the campaign service.
type CampaignCompleter interface {
	MarkCompleted(ctx context.Context, userID, id int64) error
}

type GraphSender interface {
	SendTemplate(ctx context.Context, number *model.WhatsAppNumber, tpl *model.WhatsAppTemplate, to string, params []string) (*gateway.SendResult, error)
	SendText(ctx context.Context, number *model.WhatsAppNumber, to, text string) (*gateway.SendResult, error)
	SendMessenger(ctx context.Context, pageAccessToken, recipientID, text string) (*gateway.SendResult, error)
	FetchEngagers(ctx context.Context, pageAccessToken, objectID string) ([]gateway.Engager, error)
}

// JobProcessor executes queued dispatch jobs. A nil return acknowledges the
// job; returned errors make the queue retry with backoff, so permanent send
// rejections are settled here and acknowledged instead of returned.
type JobProcessor struct {
	messageRepo  MessageRepository
	leadRepo     LeadRepository
	whatsappRepo WhatsAppRepository
	campaigns    CampaignCompleter
	client       GraphSender

	// PageAccessToken authorizes Messenger sends and engagement pulls.
	pageAccessToken string
}

func NewJobProcessor(messageRepo MessageRepository, leadRepo LeadRepository, whatsappRepo WhatsAppRepository, campaigns CampaignCompleter, client GraphSender, pageAccessToken string) *JobProcessor {
	return &JobProcessor{
		messageRepo:     messageRepo,
		leadRepo:        leadRepo,
		whatsappRepo:    whatsappRepo,
		campaigns:       campaigns,
		client:          client,
		pageAccessToken: pageAccessToken,
	}
}

func (p *JobProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Kind {
	case KindCampaignMessage:
		return p.processCampaignMessage(ctx, job)
	case KindWhatsAppTemplate:
		return p.processWhatsAppTemplate(ctx, job)
	case KindWhatsAppText:
		return p.processWhatsAppText(ctx, job)
	case KindImportEngagement:
		return p.processImportEngagement(ctx, job)
	default:
		// Unknown kinds will not succeed on retry.
		logger.Error("unknown job kind, dropping", "kind", job.Kind, "job_id", job.ID)
		return nil
	}
}

func (p *JobProcessor) processCampaignMessage(ctx context.Context, job *queue.Job) error {
	var payload CampaignMessagePayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		logger.Error("failed to unmarshal campaign message payload", "job_id", job.ID, "error", err)
		return nil
	}

	msg, err := p.messageRepo.GetByID(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("load message %d: %w", payload.MessageID, err)
	}

	// Cancelled or already-delivered rows are acknowledged without a send.
	if msg.Status != model.MessageStatusPending {
		logger.Debug("skipping non-pending message", "message_id", msg.ID, "status", msg.Status)
		return nil
	}

	result, sendErr := p.send(ctx, payload.UserID, msg)
	return p.settle(ctx, msg, payload.CampaignID, payload.UserID, result, sendErr)
}

// send routes one message to its platform.
func (p *JobProcessor) send(ctx context.Context, userID int64, msg *model.Message) (*gateway.SendResult, error) {
	switch msg.Platform {
	case model.PlatformMessenger:
		return p.client.SendMessenger(ctx, p.pageAccessToken, msg.Recipient, msg.Content)
	case model.PlatformWhatsApp:
		number, err := p.activeNumber(ctx, userID)
		if err != nil {
			return nil, err
		}
		if msg.Type == model.MessageTypeTemplate {
			// For template campaigns the message content is the template name.
			tpl, err := p.whatsappRepo.GetTemplate(ctx, number.ID, msg.Content)
			if err != nil {
				return nil, fmt.Errorf("resolve template %q: %w", msg.Content, err)
			}
			return p.client.SendTemplate(ctx, number, tpl, msg.Recipient, nil)
		}
		return p.client.SendText(ctx, number, msg.Recipient, msg.Content)
	default:
		return nil, fmt.Errorf("unknown platform %q", msg.Platform)
	}
}

func (p *JobProcessor) activeNumber(ctx context.Context, userID int64) (*model.WhatsAppNumber, error) {
	numbers, err := p.whatsappRepo.ListNumbers(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, n := range numbers {
		if n.IsActive {
			return n, nil
		}
	}
	return nil, fmt.Errorf("user %d has no active whatsapp number", userID)
}

// settle records a send outcome. Retryable errors propagate to the queue;
// permanent ones fail the row and are acknowledged.
func (p *JobProcessor) settle(ctx context.Context, msg *model.Message, campaignID, userID int64, result *gateway.SendResult, sendErr error) error {
	platform := string(msg.Platform)

	if sendErr != nil {
		if gateway.IsRetryable(sendErr) {
			logger.Warn("send failed, will retry", "message_id", msg.ID, "error", sendErr)
			return sendErr
		}

		prom.IncSendResult(platform, "failed")
		logger.Error("send rejected permanently", "message_id", msg.ID, "error", sendErr)
		if err := p.messageRepo.MarkFailed(ctx, msg.ID, sendErr.Error()); err != nil {
			return err
		}
		p.checkCompletion(ctx, campaignID, userID)
		return nil
	}

	now := time.Now().UTC()
	if err := p.messageRepo.MarkSent(ctx, msg.ID, result.ProviderMessageID, now); err != nil {
		return err
	}

	prom.IncSendResult(platform, "sent")
	prom.ObserveSendDuration(now.Sub(msg.CreatedAt).Seconds(), platform)

	p.checkCompletion(ctx, campaignID, userID)
	return nil
}

func (p *JobProcessor) checkCompletion(ctx context.Context, campaignID, userID int64) {
	if campaignID == 0 || p.campaigns == nil {
		return
	}

	pending, err := p.messageRepo.PendingCount(ctx, campaignID)
	if err != nil {
		logger.Warn("failed to count pending messages", "campaign_id", campaignID, "error", err)
		return
	}
	if pending > 0 {
		return
	}

	if err := p.campaigns.MarkCompleted(ctx, userID, campaignID); err != nil {
		logger.Error("failed to complete campaign", "campaign_id", campaignID, "error", err)
	}
}

// HandleFailure runs when a dispatch job exhausts its attempts. The message
// row is failed and, if it belonged to a campaign, completion is re-checked.
func (p *JobProcessor) HandleFailure(ctx context.Context, job *queue.Job, cause error) {
	var ref struct {
		MessageID  int64 `json:"message_id"`
		CampaignID int64 `json:"campaign_id"`
		UserID     int64 `json:"user_id"`
	}
	if err := json.Unmarshal(job.Data, &ref); err != nil || ref.MessageID == 0 {
		return
	}

	if err := p.messageRepo.MarkFailed(ctx, ref.MessageID, fmt.Sprintf("retries exhausted: %v", cause)); err != nil {
		logger.Error("failed to mark message failed after retries", "message_id", ref.MessageID, "error", err)
		return
	}
	p.checkCompletion(ctx, ref.CampaignID, ref.UserID)
}

func (p *JobProcessor) processWhatsAppTemplate(ctx context.Context, job *queue.Job) error {
	var payload WhatsAppTemplatePayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		logger.Error("failed to unmarshal template payload", "job_id", job.ID, "error", err)
		return nil
	}

	msg, err := p.messageRepo.GetByID(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("load message %d: %w", payload.MessageID, err)
	}
	if msg.Status != model.MessageStatusPending {
		return nil
	}

	number, err := p.whatsappRepo.GetNumber(ctx, payload.NumberID)
	if err != nil {
		return fmt.Errorf("load number %d: %w", payload.NumberID, err)
	}

	tpl, err := p.whatsappRepo.GetTemplateByID(ctx, payload.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %d: %w", payload.TemplateID, err)
	}

	result, sendErr := p.client.SendTemplate(ctx, number, tpl, payload.Recipient, payload.Parameters)
	return p.settle(ctx, msg, 0, number.UserID, result, sendErr)
}

func (p *JobProcessor) processWhatsAppText(ctx context.Context, job *queue.Job) error {
	var payload WhatsAppTextPayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		logger.Error("failed to unmarshal text payload", "job_id", job.ID, "error", err)
		return nil
	}

	msg, err := p.messageRepo.GetByID(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("load message %d: %w", payload.MessageID, err)
	}
	if msg.Status != model.MessageStatusPending {
		return nil
	}

	number, err := p.whatsappRepo.GetNumber(ctx, payload.NumberID)
	if err != nil {
		return fmt.Errorf("load number %d: %w", payload.NumberID, err)
	}

	result, sendErr := p.client.SendText(ctx, number, payload.Recipient, payload.Body)
	return p.settle(ctx, msg, 0, number.UserID, result, sendErr)
}

func (p *JobProcessor) processImportEngagement(ctx context.Context, job *queue.Job) error {
	var payload ImportEngagementPayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		logger.Error("failed to unmarshal import payload", "job_id", job.ID, "error", err)
		return nil
	}

	engagers, err := p.client.FetchEngagers(ctx, p.pageAccessToken, payload.ObjectID)
	if err != nil {
		return fmt.Errorf("fetch engagers for %s: %w", payload.ObjectID, err)
	}

	source := model.LeadSource(payload.Source)
	if source != model.LeadSourceFacebookComment && source != model.LeadSourceFacebookMessage {
		source = model.LeadSourceFacebookComment
	}

	imported := 0
	for _, e := range engagers {
		first, last := splitName(e.Name)
		_, err := p.leadRepo.UpsertByExternalID(ctx, &model.Lead{
			UserID:         payload.UserID,
			FirstName:      first,
			LastName:       last,
			FacebookUserID: e.FacebookUserID,
			Source:         source,
			Status:         model.LeadStatusNew,
		})
		if err != nil {
			logger.Warn("failed to upsert imported lead", "facebook_user_id", e.FacebookUserID, "error", err)
			continue
		}
		imported++
	}

	logger.Info("engagement import finished",
		"object_id", payload.ObjectID, "fetched", len(engagers), "imported", imported)
	return nil
}

func splitName(full string) (first, last string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
