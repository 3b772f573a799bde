package trial

// Step indexes the five screens of the form.
type Step int

const (
	StepParent Step = iota
	StepContact
	StepChild
	StepLocation
	StepSchedule
)

// TotalSteps is the number of input screens.
const TotalSteps = 5

type stepDef struct {
	title  string
	fields []Field
}

var steps = [TotalSteps]stepDef{
	StepParent:   {title: "Parent Information", fields: []Field{FieldParentName}},
	StepContact:  {title: "Contact Details", fields: []Field{FieldEmail, FieldWhatsApp}},
	StepChild:    {title: "Child Information", fields: []Field{FieldChildName, FieldChildAge, FieldChildInterests}},
	StepLocation: {title: "Location", fields: []Field{FieldCountry, FieldCity}},
	StepSchedule: {title: "Schedule", fields: []Field{FieldTrialDate, FieldTrialTime}},
}

func (s Step) IsValid() bool {
	return s >= StepParent && s <= StepSchedule
}

func (s Step) Title() string {
	if !s.IsValid() {
		return ""
	}
	return steps[s].title
}

// Fields returns the fields collected on the step, in display order.
func (s Step) Fields() []Field {
	if !s.IsValid() {
		return nil
	}
	out := make([]Field, len(steps[s].fields))
	copy(out, steps[s].fields)
	return out
}

// StepValid reports whether every required field of step s is non-blank in r.
// Fields of other steps are never consulted.
func StepValid(r Registration, s Step) bool {
	if !s.IsValid() {
		return false
	}

	for _, f := range steps[s].fields {
		if f.Required() && IsBlank(r.Get(f)) {
			return false
		}
	}
	return true
}
