package consent

import (
	"testing"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
)

func lead(consent bool, source model.LeadSource) *model.Lead {
	return &model.Lead{ID: 1, UserID: 1, PhoneNumber: "+15550001", ConsentGiven: consent, Source: source}
}

func TestIsEligible_WhatsAppTemplate(t *testing.T) {
	// Eligibility tracks consent exactly, regardless of source.
	for _, source := range []model.LeadSource{
		model.LeadSourceManual,
		model.LeadSourceWebForm,
		model.LeadSourceFacebookComment,
		model.LeadSourceFacebookMessage,
	} {
		assert.True(t, IsEligible(lead(true, source), model.CampaignTypeWhatsAppTemplate), "source %s", source)
		assert.False(t, IsEligible(lead(false, source), model.CampaignTypeWhatsAppTemplate), "source %s", source)
	}
}

func TestIsEligible_MessengerBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		consent bool
		source  model.LeadSource
		want    bool
	}{
		{"no consent, manual source", false, model.LeadSourceManual, false},
		{"no consent, facebook comment", false, model.LeadSourceFacebookComment, false},
		{"no consent, facebook message", false, model.LeadSourceFacebookMessage, true},
		{"consent, manual source", true, model.LeadSourceManual, true},
		{"consent, facebook message", true, model.LeadSourceFacebookMessage, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(lead(tt.consent, tt.source), model.CampaignTypeMessengerBroadcast))
		})
	}
}

func TestIsEligible_FollowUp(t *testing.T) {
	assert.True(t, IsEligible(lead(false, model.LeadSourceManual), model.CampaignTypeFollowUp))
	assert.True(t, IsEligible(lead(true, model.LeadSourceWebForm), model.CampaignTypeFollowUp))
}

func TestIsEligible_UnknownTypeRejected(t *testing.T) {
	assert.False(t, IsEligible(lead(true, model.LeadSourceManual), model.CampaignType("SMS_BLAST")))
	assert.False(t, IsEligible(lead(true, model.LeadSourceManual), model.CampaignType("")))
}

func TestIsEligible_NilLead(t *testing.T) {
	assert.False(t, IsEligible(nil, model.CampaignTypeFollowUp))
}

func TestFilter(t *testing.T) {
	leads := []*model.Lead{
		lead(true, model.LeadSourceManual),
		lead(false, model.LeadSourceManual),
		lead(false, model.LeadSourceFacebookMessage),
	}

	assert.Len(t, Filter(leads, model.CampaignTypeWhatsAppTemplate), 1)
	assert.Len(t, Filter(leads, model.CampaignTypeMessengerBroadcast), 2)
	assert.Len(t, Filter(leads, model.CampaignTypeFollowUp), 3)
}
