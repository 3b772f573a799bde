package jobs

import "strings"

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case TypeTrialConfirmation:
		var p TrialConfirmationPayload
		switch v := payload.(type) {
		case TrialConfirmationPayload:
			p = v
		case *TrialConfirmationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		// no one to contact without an address
		if trim(p.DocumentID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
