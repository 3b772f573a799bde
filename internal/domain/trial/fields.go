package trial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Field string

const (
	FieldParentName     Field = "parentName"
	FieldEmail          Field = "email"
	FieldWhatsApp       Field = "whatsapp"
	FieldChildName      Field = "childName"
	FieldChildAge       Field = "childAge"
	FieldChildInterests Field = "childInterests"
	FieldCountry        Field = "country"
	FieldCity           Field = "city"
	FieldTrialDate      Field = "trialDate"
	FieldTrialTime      Field = "trialTime"
)

// AllFields lists every field in form order.
var AllFields = []Field{
	FieldParentName,
	FieldEmail,
	FieldWhatsApp,
	FieldChildName,
	FieldChildAge,
	FieldChildInterests,
	FieldCountry,
	FieldCity,
	FieldTrialDate,
	FieldTrialTime,
}

// InputKind is the kind of input control a field is rendered with.
type InputKind string

const (
	InputText   InputKind = "text"
	InputEmail  InputKind = "email"
	InputTel    InputKind = "tel"
	InputNumber InputKind = "number"
	InputDate   InputKind = "date"
	InputTime   InputKind = "time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MinChildAge = 1
	MaxChildAge = 18
)

type fieldMeta struct {
	label       string
	kind        InputKind
	placeholder string
	hint        string
	optional    bool
}

var meta = map[Field]fieldMeta{
	FieldParentName:     {label: "Your Name", kind: InputText, placeholder: "Enter your full name"},
	FieldEmail:          {label: "Email Address", kind: InputEmail, placeholder: "your.email@example.com"},
	FieldWhatsApp:       {label: "WhatsApp Number", kind: InputTel, placeholder: "+1 234 567 8900", hint: "Include country code for best results"},
	FieldChildName:      {label: "Child's Name", kind: InputText, placeholder: "Enter your child's name"},
	FieldChildAge:       {label: "Child's Age", kind: InputNumber, placeholder: "Enter age"},
	FieldChildInterests: {label: "Interests (Optional)", kind: InputText, placeholder: "e.g., Music, Sports, Art...", hint: "This helps us personalize the trial class", optional: true},
	FieldCountry:        {label: "Country", kind: InputText, placeholder: "Enter your country"},
	FieldCity:           {label: "City", kind: InputText, placeholder: "Enter your city"},
	FieldTrialDate:      {label: "Preferred Date", kind: InputDate, placeholder: "YYYY-MM-DD"},
	FieldTrialTime:      {label: "Preferred Time", kind: InputTime, placeholder: "HH:MM"},
}

func (f Field) IsValid() bool {
	_, ok := meta[f]
	return ok
}

// Key is the JSON key the field travels under.
func (f Field) Key() string { return string(f) }

func (f Field) Label() string       { return meta[f].label }
func (f Field) Kind() InputKind     { return meta[f].kind }
func (f Field) Placeholder() string { return meta[f].placeholder }
func (f Field) Hint() string        { return meta[f].hint }

// Required reports whether the field gates its step.
func (f Field) Required() bool {
	m, ok := meta[f]
	return ok && !m.optional
}

var (
	ErrNotANumber    = errors.New("must be a number")
	ErrAgeOutOfRange = fmt.Errorf("must be between %d and %d", MinChildAge, MaxChildAge)
	ErrBadDate       = errors.New("must be a date formatted YYYY-MM-DD")
	ErrDateInPast    = errors.New("must be today or later")
	ErrBadTime       = errors.New("must be a time formatted HH:MM")
)

// CheckInput applies the constraints of the field's input control (number range,
// date not before today, 24h time). Blank values pass: presence is the step's concern.
func CheckInput(f Field, value string, today time.Time) error {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}

	switch f.Kind() {
	case InputNumber:
		n, err := strconv.Atoi(v)
		if err != nil {
			return ErrNotANumber
		}
		if n < MinChildAge || n > MaxChildAge {
			return ErrAgeOutOfRange
		}

	case InputDate:
		d, err := time.ParseInLocation(DateLayout, v, today.Location())
		if err != nil {
			return ErrBadDate
		}
		y, m, day := today.Date()
		if d.Before(time.Date(y, m, day, 0, 0, 0, 0, today.Location())) {
			return ErrDateInPast
		}

	case InputTime:
		if _, err := time.Parse(TimeLayout, v); err != nil {
			return ErrBadTime
		}
	}

	return nil
}
