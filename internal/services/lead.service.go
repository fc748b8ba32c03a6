package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leadflow/campaign-gateway/internal/dispatch"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/internal/repository"
)

type LeadRepository interface {
	Create(ctx context.Context, lead *model.Lead) (*model.Lead, error)
	GetOwned(ctx context.Context, userID, id int64) (*model.Lead, error)
	UpdateConsent(ctx context.Context, userID, id int64, given bool, consentType model.ConsentType) error
	List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error)
}

// LeadService owns lead capture and consent bookkeeping.
type LeadService struct {
	leadRepo    LeadRepository
	importQueue *queue.Queue
}

func NewLeadService(leadRepo LeadRepository, importQueue *queue.Queue) *LeadService {
	return &LeadService{
		leadRepo:    leadRepo,
		importQueue: importQueue,
	}
}

func (s *LeadService) Create(ctx context.Context, p model.LeadCreateRequest) (*model.Lead, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.PhoneNumber = strings.TrimSpace(p.PhoneNumber)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	status := p.Status
	if status == "" {
		status = model.LeadStatusNew
	}
	source := p.Source
	if source == "" {
		source = model.LeadSourceManual
	}

	lead := &model.Lead{
		UserID:         p.UserID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		PhoneNumber:    p.PhoneNumber,
		FacebookUserID: p.FacebookUserID,
		Source:         source,
		Status:         status,
		ConsentGiven:   p.ConsentGiven,
		ConsentType:    p.ConsentType,
		TagIDs:         p.TagIDs,
	}
	if p.ConsentGiven {
		now := time.Now().UTC()
		lead.ConsentTimestamp = &now
		if lead.ConsentType == "" {
			lead.ConsentType = model.ConsentTypeExplicit
		}
	}

	created, err := s.leadRepo.Create(ctx, lead)
	if err == repository.ErrDuplicate {
		return nil, fmt.Errorf("%w: a lead with this contact already exists", model.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *LeadService) Get(ctx context.Context, userID, id int64) (*model.Lead, error) {
	return s.leadRepo.GetOwned(ctx, userID, id)
}

func (s *LeadService) List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	return s.leadRepo.List(ctx, f)
}

// UpdateConsent flips a lead's messaging consent. Granting stamps the consent
// timestamp; revoking clears eligibility immediately but never deletes the
// audit trail already written.
func (s *LeadService) UpdateConsent(ctx context.Context, userID, id int64, given bool, consentType model.ConsentType) (*model.Lead, error) {
	if given && consentType == "" {
		consentType = model.ConsentTypeExplicit
	}
	if err := s.leadRepo.UpdateConsent(ctx, userID, id, given, consentType); err != nil {
		return nil, err
	}
	return s.leadRepo.GetOwned(ctx, userID, id)
}

// ImportEngagement queues a background pull of everyone who engaged with a
// Facebook object. The job id lets callers poll the queue for progress.
func (s *LeadService) ImportEngagement(ctx context.Context, userID int64, pageID, objectID string, source model.LeadSource) (string, error) {
	if objectID == "" {
		return "", fmt.Errorf("%w: object_id is required", model.ErrValidation)
	}
	if source != model.LeadSourceFacebookComment && source != model.LeadSourceFacebookMessage {
		return "", fmt.Errorf("%w: source must be FACEBOOK_COMMENT or FACEBOOK_MESSAGE", model.ErrValidation)
	}

	payload := dispatch.ImportEngagementPayload{
		UserID:   userID,
		PageID:   pageID,
		ObjectID: objectID,
		Source:   string(source),
	}

	jobID, err := s.importQueue.Enqueue(ctx, dispatch.KindImportEngagement, payload, dispatch.DefaultOptions(dispatch.KindImportEngagement))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}
	return jobID, nil
}
