package fixtures

import (
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
)

func NewTestLead(userID int64, phone string, consented bool) *model.Lead {
	lead := &model.Lead{
		UserID:      userID,
		FirstName:   "Ana",
		LastName:    "Silva",
		PhoneNumber: phone,
		Source:      model.LeadSourceManual,
		Status:      model.LeadStatusNew,
	}
	if consented {
		now := time.Now().UTC()
		lead.ConsentGiven = true
		lead.ConsentTimestamp = &now
		lead.ConsentType = model.ConsentTypeExplicit
	}
	return lead
}

func NewTestLeadCreateRequest(userID int64, phone string) model.LeadCreateRequest {
	return model.LeadCreateRequest{
		UserID:      userID,
		FirstName:   "Ana",
		LastName:    "Silva",
		PhoneNumber: phone,
		Source:      model.LeadSourceManual,
	}
}

func NewTestCampaignCreateRequest(userID int64, campaignType model.CampaignType) model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		UserID:          userID,
		Name:            "Spring Promo",
		Type:            campaignType,
		MessageTemplate: "Hi {{name}}, check our spring offers!",
	}
}

var (
	ValidPhoneNumbers = []string{
		"+1234567890",
		"+9876543210",
		"+4412345678",
		"+33123456789",
		"+81312345678",
	}

	ValidTemplateNames = []string{
		"welcome_message",
		"order_update",
		"spring_promo",
	}
)

func CampaignFilterByUser(userID int64) model.CampaignFilter {
	return model.CampaignFilter{
		UserID: userID,
		Limit:  50,
		Offset: 0,
	}
}

func LeadFilterByUser(userID int64) model.LeadFilter {
	return model.LeadFilter{
		UserID: userID,
		Limit:  50,
		Offset: 0,
	}
}
