package trial

import (
	"errors"
	"strings"
)

// Collection is the document store collection trial registrations are appended to.
const Collection = "trial_registrations"

// Registration is the record built up by the form and persisted by the gateway.
// createdAt is never part of it: the gateway stamps it at persistence time.
type Registration struct {
	ParentName     string `json:"parentName" binding:"notblank"`
	Email          string `json:"email" binding:"notblank"`
	WhatsApp       string `json:"whatsapp" binding:"notblank"`
	ChildName      string `json:"childName" binding:"notblank"`
	ChildAge       string `json:"childAge" binding:"notblank"`
	ChildInterests string `json:"childInterests"`
	Country        string `json:"country" binding:"notblank"`
	City           string `json:"city" binding:"notblank"`
	TrialDate      string `json:"trialDate" binding:"notblank"`
	TrialTime      string `json:"trialTime" binding:"notblank"`
}

var ErrUnknownField = errors.New("unknown registration field")

// IsBlank reports whether s is empty once surrounding whitespace is trimmed.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Get returns the value held for f.
func (r Registration) Get(f Field) string {
	switch f {
	case FieldParentName:
		return r.ParentName
	case FieldEmail:
		return r.Email
	case FieldWhatsApp:
		return r.WhatsApp
	case FieldChildName:
		return r.ChildName
	case FieldChildAge:
		return r.ChildAge
	case FieldChildInterests:
		return r.ChildInterests
	case FieldCountry:
		return r.Country
	case FieldCity:
		return r.City
	case FieldTrialDate:
		return r.TrialDate
	case FieldTrialTime:
		return r.TrialTime
	default:
		return ""
	}
}

// With returns a copy of r with f set to value.
func (r Registration) With(f Field, value string) (Registration, error) {
	switch f {
	case FieldParentName:
		r.ParentName = value
	case FieldEmail:
		r.Email = value
	case FieldWhatsApp:
		r.WhatsApp = value
	case FieldChildName:
		r.ChildName = value
	case FieldChildAge:
		r.ChildAge = value
	case FieldChildInterests:
		r.ChildInterests = value
	case FieldCountry:
		r.Country = value
	case FieldCity:
		r.City = value
	case FieldTrialDate:
		r.TrialDate = value
	case FieldTrialTime:
		r.TrialTime = value
	default:
		return r, ErrUnknownField
	}

	return r, nil
}

// Fields flattens the registration into the document shape sent over the wire.
func (r Registration) Fields() map[string]any {
	out := make(map[string]any, len(AllFields))
	for _, f := range AllFields {
		out[f.Key()] = r.Get(f)
	}
	return out
}

// Confirmation is the copy shown on the success card.
type Confirmation struct {
	Title string
	Body  string
}

func NewConfirmation(r Registration) Confirmation {
	return Confirmation{
		Title: "Thank You, " + r.ParentName + "!",
		Body: "We've received " + r.ChildName + "'s trial class registration for " +
			r.TrialDate + " at " + r.TrialTime +
			". We'll contact you shortly to confirm the details.",
	}
}
