package jobs

import (
	"time"

	"github.com/geocoder89/trialbooking/internal/domain/document"
	"github.com/geocoder89/trialbooking/internal/domain/trial"
)

// TrialConfirmationPayload carries what the follow-up contact needs. It is a
// snapshot so the worker never reads the document store.
type TrialConfirmationPayload struct {
	DocumentID  string    `json:"documentId"`
	ParentName  string    `json:"parentName"`
	ChildName   string    `json:"childName"`
	Email       string    `json:"email"`
	WhatsApp    string    `json:"whatsapp,omitempty"`
	TrialDate   string    `json:"trialDate,omitempty"`
	TrialTime   string    `json:"trialTime,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// TrialConfirmationFromDocument reads the known registration keys; documents
// stored without them give an empty value, which ValidatePayload rejects.
func TrialConfirmationFromDocument(doc document.Document, now time.Time) TrialConfirmationPayload {
	return TrialConfirmationPayload{
		DocumentID:  doc.ID,
		ParentName:  doc.String(trial.FieldParentName.Key()),
		ChildName:   doc.String(trial.FieldChildName.Key()),
		Email:       doc.String(trial.FieldEmail.Key()),
		WhatsApp:    doc.String(trial.FieldWhatsApp.Key()),
		TrialDate:   doc.String(trial.FieldTrialDate.Key()),
		TrialTime:   doc.String(trial.FieldTrialTime.Key()),
		RequestedAt: now.UTC(),
	}
}
