package model

import (
	"fmt"
	"time"
)

type LeadSource string

const (
	LeadSourceManual          LeadSource = "MANUAL"
	LeadSourceWebForm         LeadSource = "WEB_FORM"
	LeadSourceFacebookComment LeadSource = "FACEBOOK_COMMENT"
	LeadSourceFacebookMessage LeadSource = "FACEBOOK_MESSAGE"
	LeadSourceImport          LeadSource = "IMPORT"
)

type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "NEW"
	LeadStatusContacted   LeadStatus = "CONTACTED"
	LeadStatusQualified   LeadStatus = "QUALIFIED"
	LeadStatusConverted   LeadStatus = "CONVERTED"
	LeadStatusUnsubscribed LeadStatus = "UNSUBSCRIBED"
)

type ConsentType string

const (
	ConsentTypeExplicit ConsentType = "EXPLICIT"
	ConsentTypeImplicit ConsentType = "IMPLICIT"
)

// Lead is a contact captured from some channel. At least one of Email,
// PhoneNumber or FacebookUserID must be present. ConsentGiven == true implies
// ConsentTimestamp is set.
type Lead struct {
	ID               int64       `json:"id"`
	UserID           int64       `json:"user_id"`
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	Email            string      `json:"email"`
	PhoneNumber      string      `json:"phone_number"`
	FacebookUserID   string      `json:"facebook_user_id"`
	Source           LeadSource  `json:"source"`
	Status           LeadStatus  `json:"status"`
	ConsentGiven     bool        `json:"consent_given"`
	ConsentTimestamp *time.Time  `json:"consent_timestamp"`
	ConsentType      ConsentType `json:"consent_type,omitempty"`
	LastContactAt    *time.Time  `json:"last_contact_at"`
	TagIDs           []int64     `json:"tag_ids,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (l *Lead) Name() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

type LeadCreateRequest struct {
	UserID         int64
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	FacebookUserID string
	Source         LeadSource
	Status         LeadStatus
	ConsentGiven   bool
	ConsentType    ConsentType
	TagIDs         []int64
}

func (p LeadCreateRequest) Validate() error {
	if p.UserID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if p.Email == "" && p.PhoneNumber == "" && p.FacebookUserID == "" {
		return fmt.Errorf("%w: at least one of email, phone_number or facebook_user_id is required", ErrValidation)
	}
	if p.Source == LeadSourceWebForm && !p.ConsentGiven {
		return fmt.Errorf("%w: web form leads require consent", ErrValidation)
	}
	return nil
}

// AudienceFilter selects the lead set a campaign targets. All recognized
// options AND together; each multi-value option is an OR within itself.
type AudienceFilter struct {
	Statuses    []LeadStatus `json:"status,omitempty"`
	Sources     []LeadSource `json:"source,omitempty"`
	TagIDs      []int64      `json:"tags,omitempty"`
	ConsentOnly bool         `json:"consent_only,omitempty"`
	DateRange   *DateRange   `json:"date_range,omitempty"`
}

// DateRange bounds lead creation time, both ends inclusive.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// LeadFilter controls lead listing at the API boundary.
type LeadFilter struct {
	UserID      int64
	Status      *LeadStatus
	Source      *LeadSource
	ConsentOnly bool
	Search      string
	Limit       int
	Offset      int
}
