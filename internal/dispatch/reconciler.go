package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/redis"
)

// SessionWindow is how long after an inbound contact a free-form WhatsApp
// message may be sent.
const SessionWindow = 24 * time.Hour

const windowKeyPrefix = "wa:window:"

type ReconcilerMessageRepository interface {
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type ReconcilerLeadRepository interface {
	FindByPhone(ctx context.Context, userID int64, phone string) (*model.Lead, error)
	TouchLastContact(ctx context.Context, phone string, at time.Time) error
}

// Reconciler applies provider delivery callbacks to message rows and tracks
// the per-contact session window. All operations are idempotent: replayed
// callbacks and unknown provider ids are absorbed without error.
type Reconciler struct {
	messageRepo ReconcilerMessageRepository
	leadRepo    ReconcilerLeadRepository
	cache       redis.RedisAdapter
}

func NewReconciler(messageRepo ReconcilerMessageRepository, leadRepo ReconcilerLeadRepository, cache redis.RedisAdapter) *Reconciler {
	return &Reconciler{
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		cache:       cache,
	}
}

// Reconcile maps one provider status callback onto the message it belongs to.
// Callbacks for provider ids we never recorded are dropped; a late "sent"
// after "delivered" does not regress the row.
func (r *Reconciler) Reconcile(ctx context.Context, providerMessageID, status string, at time.Time) error {
	if providerMessageID == "" {
		return nil
	}

	msg, err := r.messageRepo.GetByProviderID(ctx, providerMessageID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug("delivery callback for unknown provider id", "provider_message_id", providerMessageID)
		return nil
	}
	if err != nil {
		return err
	}

	switch status {
	case "delivered", "read":
		if msg.Status == model.MessageStatusDelivered {
			return nil
		}
		return r.messageRepo.MarkDelivered(ctx, msg.ID, at)
	case "failed", "undelivered":
		if msg.Status == model.MessageStatusDelivered || msg.Status == model.MessageStatusFailed {
			return nil
		}
		return r.messageRepo.MarkFailed(ctx, msg.ID, "provider reported "+status)
	case "sent":
		// Already recorded at dispatch time.
		return nil
	default:
		logger.Warn("unrecognized delivery status", "status", status, "provider_message_id", providerMessageID)
		return nil
	}
}

// RecordInboundContact opens (or extends) the contact's session window and
// stamps last_contact_at on every matching lead row.
func (r *Reconciler) RecordInboundContact(ctx context.Context, phone string, at time.Time) error {
	if phone == "" {
		return nil
	}

	if err := r.cache.Set(windowKeyPrefix+phone, []byte(at.UTC().Format(time.RFC3339)), SessionWindow); err != nil {
		logger.Warn("failed to cache session window", "phone", phone, "error", err)
	}

	return r.leadRepo.TouchLastContact(ctx, phone, at)
}

// WithinWindow reports whether a free-form message to the phone is currently
// allowed. The cache answers the common case; on a miss the lead row's
// last_contact_at decides.
func (r *Reconciler) WithinWindow(ctx context.Context, userID int64, phone string) (bool, error) {
	if phone == "" {
		return false, nil
	}

	exists, err := r.cache.Exist(windowKeyPrefix + phone)
	if err == nil && exists > 0 {
		return true, nil
	}

	lead, err := r.leadRepo.FindByPhone(ctx, userID, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if lead.LastContactAt == nil {
		return false, nil
	}
	return time.Since(*lead.LastContactAt) < SessionWindow, nil
}
