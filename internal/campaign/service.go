package campaign

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leadflow/campaign-gateway/internal/consent"
	"github.com/leadflow/campaign-gateway/internal/dispatch"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/pkg/logger"
)

// Per-message cost in account currency, keyed by campaign type. Used for
// preview estimates only; nothing is billed here.
var messageCosts = map[model.CampaignType]float64{
	model.CampaignTypeWhatsAppTemplate:   0.05,
	model.CampaignTypeMessengerBroadcast: 0.01,
	model.CampaignTypeFollowUp:           0.02,
}

const previewSampleSize = 10

const cancelReason = "Campaign cancelled"

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	GetOwned(ctx context.Context, userID, id int64) (*model.Campaign, error)
	Save(ctx context.Context, c *model.Campaign) error
	ClaimStart(ctx context.Context, userID, id int64, startedAt time.Time) (bool, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	MessageStats(ctx context.Context, campaignID int64) (*model.MessageStats, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
	CancelPending(ctx context.Context, campaignID int64, reason string) (int64, error)
}

type AudienceResolver interface {
	Resolve(ctx context.Context, userID int64, f model.AudienceFilter) ([]*model.Lead, error)
}

// Service owns the campaign lifecycle. Transitions on one campaign are
// serialized through a per-campaign lock within the process; the start
// transition is additionally arbitrated in the database, since the API and
// the dispatcher's schedule sweep can race it from separate processes.
type Service struct {
	campaignRepo CampaignRepository
	messageRepo  MessageRepository
	resolver     AudienceResolver
	queue        *queue.Queue
	events       *Emitter

	mu    sync.Mutex
	locks map[int64]*campaignLock
}

func NewService(campaignRepo CampaignRepository, messageRepo MessageRepository, resolver AudienceResolver, q *queue.Queue, events *Emitter) *Service {
	return &Service{
		campaignRepo: campaignRepo,
		messageRepo:  messageRepo,
		resolver:     resolver,
		queue:        q,
		events:       events,
		locks:        make(map[int64]*campaignLock),
	}
}

type campaignLock struct {
	sync.Mutex
	refs int
}

// lock serializes transitions on one campaign. Entries are dropped when the
// last holder releases, so the map stays bounded by in-flight transitions.
func (s *Service) lock(campaignID int64) *campaignLock {
	s.mu.Lock()
	l, ok := s.locks[campaignID]
	if !ok {
		l = &campaignLock{}
		s.locks[campaignID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *Service) unlock(campaignID int64, l *campaignLock) {
	l.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, campaignID)
	}
	s.mu.Unlock()
}

func (s *Service) Create(ctx context.Context, p model.CampaignCreateRequest) (*model.Campaign, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	status := model.CampaignStatusDraft
	if p.ScheduledAt != nil {
		if !p.ScheduledAt.After(time.Now()) {
			return nil, fmt.Errorf("%w: scheduled_at must be in the future", model.ErrInvalidSchedule)
		}
		status = model.CampaignStatusScheduled
	}

	c := &model.Campaign{
		UserID:          p.UserID,
		Name:            p.Name,
		Description:     p.Description,
		Type:            p.Type,
		Status:          status,
		TargetAudience:  p.TargetAudience,
		MessageTemplate: p.MessageTemplate,
		ScheduledAt:     p.ScheduledAt,
	}

	created, err := s.campaignRepo.Create(ctx, c)
	if err != nil {
		return nil, err
	}

	s.emit(created, "campaign.created", nil)
	return created, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	return s.campaignRepo.GetOwned(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	return s.campaignRepo.List(ctx, f)
}

func (s *Service) Stats(ctx context.Context, userID, id int64) (*model.MessageStats, error) {
	if _, err := s.campaignRepo.GetOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.campaignRepo.MessageStats(ctx, id)
}

// Update mutates campaign content. Only DRAFT and SCHEDULED campaigns accept
// updates; anything already started is immutable.
func (s *Service) Update(ctx context.Context, userID, id int64, p model.CampaignUpdateRequest) (*model.Campaign, error) {
	l := s.lock(id)
	defer s.unlock(id, l)

	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if c.Status != model.CampaignStatusDraft && c.Status != model.CampaignStatusScheduled {
		return nil, fmt.Errorf("%w: cannot update campaign in status %s", model.ErrStateConflict, c.Status)
	}

	if p.Name != nil {
		if *p.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", model.ErrValidation)
		}
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.MessageTemplate != nil {
		if *p.MessageTemplate == "" {
			return nil, fmt.Errorf("%w: message_template cannot be empty", model.ErrValidation)
		}
		c.MessageTemplate = *p.MessageTemplate
	}
	if p.TargetAudience != nil {
		c.TargetAudience = *p.TargetAudience
	}
	if p.SetScheduledAt {
		if p.ScheduledAt != nil {
			if !p.ScheduledAt.After(time.Now()) {
				return nil, fmt.Errorf("%w: scheduled_at must be in the future", model.ErrInvalidSchedule)
			}
			c.ScheduledAt = p.ScheduledAt
			c.Status = model.CampaignStatusScheduled
		} else {
			c.ScheduledAt = nil
			c.Status = model.CampaignStatusDraft
		}
	}

	if err := s.campaignRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.emit(c, "campaign.updated", nil)
	return c, nil
}

// Preview resolves the audience and applies consent rules without touching
// campaign state. The same pipeline runs again at start time, so the numbers
// can drift if leads change in between.
func (s *Service) Preview(ctx context.Context, userID, id int64) (*model.CampaignPreview, error) {
	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, c.UserID, c.TargetAudience)
	if err != nil {
		return nil, err
	}

	eligible := consent.Filter(resolved, c.Type)

	sample := eligible
	if len(sample) > previewSampleSize {
		sample = sample[:previewSampleSize]
	}

	return &model.CampaignPreview{
		TotalLeads:    len(resolved),
		EligibleLeads: len(eligible),
		EstimatedCost: float64(len(eligible)) * messageCosts[c.Type],
		LeadsSample:   sample,
	}, nil
}

// Start transitions a DRAFT or SCHEDULED campaign to RUNNING, creates one
// PENDING message row per eligible lead and enqueues a dispatch job for each.
// An empty resolved or eligible audience aborts before any state changes.
func (s *Service) Start(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	l := s.lock(id)
	defer s.unlock(id, l)

	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if c.Status != model.CampaignStatusDraft && c.Status != model.CampaignStatusScheduled {
		return nil, fmt.Errorf("%w: cannot start campaign in status %s", model.ErrStateConflict, c.Status)
	}

	resolved, err := s.resolver.Resolve(ctx, c.UserID, c.TargetAudience)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: audience filter matched no leads", model.ErrEmptyAudience)
	}

	eligible := consent.Filter(resolved, c.Type)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no leads are eligible for %s messaging", model.ErrEmptyAudience, c.Type)
	}

	// The claim is a conditional update on the previous status, so when the
	// API and the schedule sweep race on the same campaign only one of them
	// fans out.
	now := time.Now().UTC()
	claimed, err := s.campaignRepo.ClaimStart(ctx, c.UserID, c.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: campaign was already started", model.ErrStateConflict)
	}
	c.Status = model.CampaignStatusRunning
	c.StartedAt = &now
	c.ScheduledAt = nil

	enqueued, failed := s.fanOut(ctx, c, eligible)

	s.emit(c, "campaign.started", map[string]string{
		"resolved": strconv.Itoa(len(resolved)),
		"eligible": strconv.Itoa(len(eligible)),
		"enqueued": strconv.Itoa(enqueued),
		"failed":   strconv.Itoa(failed),
	})

	return c, nil
}

// fanOut creates and enqueues one message per lead. On an enqueue failure the
// message row created for it is marked FAILED and the fan-out stops; leads
// after the failure point get no message rows.
func (s *Service) fanOut(ctx context.Context, c *model.Campaign, leads []*model.Lead) (enqueued, failed int) {
	for _, lead := range leads {
		msg, err := s.messageRepo.Create(ctx, buildMessage(c, lead))
		if err != nil {
			logger.Error("failed to create campaign message", "campaign_id", c.ID, "lead_id", lead.ID, "error", err)
			failed++
			continue
		}

		payload := dispatch.CampaignMessagePayload{
			MessageID:  msg.ID,
			CampaignID: c.ID,
			LeadID:     lead.ID,
			UserID:     c.UserID,
		}

		_, err = s.queue.Enqueue(ctx, dispatch.KindCampaignMessage, payload, dispatch.DefaultOptions(dispatch.KindCampaignMessage))
		if err != nil {
			logger.Error("failed to enqueue campaign message, stopping fan-out",
				"campaign_id", c.ID, "message_id", msg.ID, "error", err)
			if markErr := s.messageRepo.MarkFailed(ctx, msg.ID, "enqueue failed: "+err.Error()); markErr != nil {
				logger.Error("failed to mark message failed", "message_id", msg.ID, "error", markErr)
			}
			failed++
			return enqueued, failed
		}
		enqueued++
	}
	return enqueued, failed
}

// buildMessage renders the template for one lead and picks the delivery
// platform. Follow-ups prefer WhatsApp when the lead has a phone number.
func buildMessage(c *model.Campaign, lead *model.Lead) *model.Message {
	campaignID := c.ID

	msg := &model.Message{
		LeadID:     lead.ID,
		CampaignID: &campaignID,
		Content:    RenderTemplate(c.MessageTemplate, lead),
		Status:     model.MessageStatusPending,
	}

	switch c.Type {
	case model.CampaignTypeWhatsAppTemplate:
		msg.Platform = model.PlatformWhatsApp
		msg.Type = model.MessageTypeTemplate
		msg.Recipient = lead.PhoneNumber
	case model.CampaignTypeMessengerBroadcast:
		msg.Platform = model.PlatformMessenger
		msg.Type = model.MessageTypeText
		msg.Recipient = lead.FacebookUserID
	default:
		msg.Type = model.MessageTypeText
		if lead.PhoneNumber != "" {
			msg.Platform = model.PlatformWhatsApp
			msg.Recipient = lead.PhoneNumber
		} else {
			msg.Platform = model.PlatformMessenger
			msg.Recipient = lead.FacebookUserID
		}
	}

	return msg
}

// RenderTemplate substitutes {{name}}, {{first_name}} and {{last_name}}
// placeholders. Unknown placeholders pass through untouched.
func RenderTemplate(template string, lead *model.Lead) string {
	r := strings.NewReplacer(
		"{{name}}", lead.Name(),
		"{{first_name}}", lead.FirstName,
		"{{last_name}}", lead.LastName,
	)
	return r.Replace(template)
}

// Pause stops a RUNNING campaign from the user's point of view. Jobs already
// in the queue keep flowing; pause is a display state, not a delivery gate.
func (s *Service) Pause(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	return s.transition(ctx, userID, id, "campaign.paused", model.CampaignStatusPaused, model.CampaignStatusRunning)
}

// Resume returns a PAUSED campaign to RUNNING.
func (s *Service) Resume(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	return s.transition(ctx, userID, id, "campaign.resumed", model.CampaignStatusRunning, model.CampaignStatusPaused)
}

// Cancel terminates a campaign and fails its undispatched messages. Jobs
// already picked up by a worker may still deliver; cancellation is
// best-effort, not an abort. Cancelling twice is a no-op, not a conflict.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (*model.Campaign, error) {
	l := s.lock(id)
	defer s.unlock(id, l)

	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if c.Status == model.CampaignStatusCancelled {
		return c, nil
	}
	if c.Status == model.CampaignStatusCompleted {
		return nil, fmt.Errorf("%w: cannot cancel campaign in status %s", model.ErrStateConflict, c.Status)
	}

	now := time.Now().UTC()
	c.Status = model.CampaignStatusCancelled
	c.CompletedAt = &now
	if err := s.campaignRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	cancelled, err := s.messageRepo.CancelPending(ctx, c.ID, cancelReason)
	if err != nil {
		logger.Error("failed to cancel pending messages", "campaign_id", c.ID, "error", err)
	}

	s.emit(c, "campaign.cancelled", map[string]string{
		"messages_cancelled": strconv.FormatInt(cancelled, 10),
	})
	return c, nil
}

func (s *Service) transition(ctx context.Context, userID, id int64, action string, to model.CampaignStatus, from ...model.CampaignStatus) (*model.Campaign, error) {
	l := s.lock(id)
	defer s.unlock(id, l)

	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot transition campaign from %s to %s", model.ErrStateConflict, c.Status, to)
	}

	c.Status = to
	if err := s.campaignRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.emit(c, action, nil)
	return c, nil
}

// MarkCompleted flips a RUNNING campaign to COMPLETED once its last message
// leaves PENDING. Called by the dispatcher's completion check.
func (s *Service) MarkCompleted(ctx context.Context, userID, id int64) error {
	l := s.lock(id)
	defer s.unlock(id, l)

	c, err := s.campaignRepo.GetOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusRunning {
		return nil
	}

	now := time.Now().UTC()
	c.Status = model.CampaignStatusCompleted
	c.CompletedAt = &now
	if err := s.campaignRepo.Save(ctx, c); err != nil {
		return err
	}

	s.emit(c, "campaign.completed", nil)
	return nil
}

// StartDueScheduled starts every SCHEDULED campaign whose time has come. One
// campaign failing to start does not block the rest.
func (s *Service) StartDueScheduled(ctx context.Context, now time.Time) int {
	due, err := s.campaignRepo.ListDueScheduled(ctx, now)
	if err != nil {
		logger.Error("failed to list due scheduled campaigns", "error", err)
		return 0
	}

	started := 0
	for _, c := range due {
		if _, err := s.Start(ctx, c.UserID, c.ID); err != nil {
			logger.Error("failed to start scheduled campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		started++
	}
	return started
}

func (s *Service) emit(c *model.Campaign, action string, details map[string]string) {
	if s.events == nil {
		return
	}
	s.events.Emit(Event{
		UserID:     c.UserID,
		Action:     action,
		Resource:   "campaign",
		ResourceID: c.ID,
		Details:    details,
	})
}
