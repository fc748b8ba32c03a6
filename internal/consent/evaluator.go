package consent

import "github.com/leadflow/campaign-gateway/internal/model"

// IsEligible reports whether a lead may be messaged by a campaign of the given
// type. Pure and total: it never errors, and unknown campaign types are
// rejected rather than defaulting to allow.
//
//   - WHATSAPP_TEMPLATE: requires explicit consent.
//   - MESSENGER_BROADCAST: consent, or the lead originated from a Facebook
//     message (platform-initiated conversation).
//   - FOLLOW_UP: no consent gate; the audience filter is the only gate.
func IsEligible(lead *model.Lead, campaignType model.CampaignType) bool {
	if lead == nil {
		return false
	}
	switch campaignType {
	case model.CampaignTypeWhatsAppTemplate:
		return lead.ConsentGiven
	case model.CampaignTypeMessengerBroadcast:
		return lead.ConsentGiven || lead.Source == model.LeadSourceFacebookMessage
	case model.CampaignTypeFollowUp:
		return true
	}
	return false
}

// Filter returns the subset of leads eligible for the campaign type,
// preserving order.
func Filter(leads []*model.Lead, campaignType model.CampaignType) []*model.Lead {
	eligible := make([]*model.Lead, 0, len(leads))
	for _, l := range leads {
		if IsEligible(l, campaignType) {
			eligible = append(eligible, l)
		}
	}
	return eligible
}
