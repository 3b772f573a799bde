package jobs

type JobType string

const (
	// TypeTrialConfirmation asks someone to contact the family and confirm the trial slot.
	TypeTrialConfirmation JobType = "trial.confirmation"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case TypeTrialConfirmation:
		return true
	default:
		return false
	}
}
