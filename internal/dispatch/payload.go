package dispatch

import (
	"time"

	"github.com/leadflow/campaign-gateway/internal/queue"
)

// Job kinds understood by the dispatcher.
const (
	KindCampaignMessage  = "campaign_message"
	KindWhatsAppTemplate = "whatsapp_template"
	KindWhatsAppText     = "whatsapp_text"
	KindImportEngagement = "import_engagement"
)

// CampaignMessagePayload delivers one pre-created campaign message row.
type CampaignMessagePayload struct {
	MessageID  int64 `json:"message_id"`
	CampaignID int64 `json:"campaign_id"`
	LeadID     int64 `json:"lead_id"`
	UserID     int64 `json:"user_id"`
}

// WhatsAppTemplatePayload is a direct (non-campaign) template send.
type WhatsAppTemplatePayload struct {
	MessageID  int64    `json:"message_id"`
	NumberID   int64    `json:"number_id"`
	TemplateID int64    `json:"template_id"`
	Recipient  string   `json:"recipient"`
	Parameters []string `json:"parameters,omitempty"`
}

// WhatsAppTextPayload is a direct free-form send inside the 24-hour window.
type WhatsAppTextPayload struct {
	MessageID int64  `json:"message_id"`
	NumberID  int64  `json:"number_id"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

// ImportEngagementPayload asks the worker to pull commenters or conversation
// participants for one Facebook object and upsert them as leads.
type ImportEngagementPayload struct {
	UserID   int64  `json:"user_id"`
	PageID   string `json:"page_id"`
	ObjectID string `json:"object_id"`
	// Source is FACEBOOK_COMMENT or FACEBOOK_MESSAGE.
	Source string `json:"source"`
}

// DefaultOptions returns the enqueue policy for a job kind. Message sends
// retry with exponential backoff; engagement imports are cheaper to re-run
// whole, so they get fewer tries on a fixed delay.
func DefaultOptions(kind string) queue.Options {
	switch kind {
	case KindImportEngagement:
		return queue.Options{
			Attempts:  2,
			Backoff:   queue.Backoff{Type: queue.BackoffFixed, Delay: 5 * time.Second},
			Retention: 50,
		}
	default:
		return queue.Options{
			Attempts:  3,
			Backoff:   queue.Backoff{Type: queue.BackoffExponential, Delay: 2 * time.Second},
			Retention: 100,
		}
	}
}
