// Package wizard drives the five-step trial registration form: it owns the
// in-progress record, the current step, forward gating and the submit lifecycle.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/geocoder89/trialbooking/internal/domain/trial"
)

// StepSubmitted is the terminal step reached after a successful submit.
const StepSubmitted = trial.Step(trial.TotalSteps)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

var (
	ErrNotReady       = errors.New("registration is not ready to submit")
	ErrSubmitInFlight = errors.New("a submission is already in flight")
)

// Gateway sends a completed registration to the server.
type Gateway interface {
	Submit(ctx context.Context, reg trial.Registration) error
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient toast for the user.
type Notification struct {
	Kind        NotificationKind
	Title       string
	Description string
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

var (
	successToast = Notification{
		Kind:        NotifySuccess,
		Title:       "Registration Successful!",
		Description: "We'll contact you shortly to confirm your trial class.",
	}
	errorToast = Notification{
		Kind:        NotifyError,
		Title:       "Error",
		Description: "Something went wrong. Please try again.",
	}
)

type Wizard struct {
	gateway  Gateway
	notifier Notifier

	mu     sync.Mutex
	step   trial.Step
	status Status
	record trial.Registration
}

type Option func(*Wizard)

func WithNotifier(n Notifier) Option {
	return func(w *Wizard) {
		if n != nil {
			w.notifier = n
		}
	}
}

func New(gateway Gateway, opts ...Option) *Wizard {
	w := &Wizard{
		gateway:  gateway,
		notifier: NotifierFunc(func(Notification) {}),
		step:     trial.StepParent,
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Step() trial.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Record returns a copy of the in-progress registration.
func (w *Wizard) Record() trial.Registration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record
}

func (w *Wizard) Submitted() bool {
	return w.Step() == StepSubmitted
}

// SetField merges value into the record. A submitted record is immutable, so
// the call is ignored until Reset. While a submit is in flight the record is
// frozen so the confirmation shows exactly what was sent.
func (w *Wizard) SetField(f trial.Field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == StepSubmitted {
		return nil
	}
	if w.status == StatusSubmitting {
		return ErrSubmitInFlight
	}

	rec, err := w.record.With(f, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", f, err)
	}
	w.record = rec
	return nil
}

// IsStepValid is the single predicate behind both the Continue and the Submit controls.
func (w *Wizard) IsStepValid(s trial.Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return trial.StepValid(w.record, s)
}

func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canAdvanceLocked()
}

func (w *Wizard) canAdvanceLocked() bool {
	return w.step < trial.StepSchedule && trial.StepValid(w.record, w.step)
}

func (w *Wizard) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canSubmitLocked()
}

func (w *Wizard) canSubmitLocked() bool {
	return w.step == trial.StepSchedule &&
		w.status != StatusSubmitting &&
		trial.StepValid(w.record, w.step)
}

// Advance moves one step forward when the current step is valid.
func (w *Wizard) Advance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.canAdvanceLocked() {
		return false
	}
	w.step++
	return true
}

// Retreat moves one step back; validity is not required. It is refused while
// a submit is in flight.
func (w *Wizard) Retreat() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step <= trial.StepParent || w.step == StepSubmitted || w.status == StatusSubmitting {
		return false
	}
	w.step--
	return true
}

// Submit sends the record through the gateway. The lock is released for the
// round-trip; a concurrent Submit sees StatusSubmitting and is refused.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.status == StatusSubmitting && w.step == trial.StepSchedule {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if !w.canSubmitLocked() {
		w.mu.Unlock()
		return ErrNotReady
	}
	w.status = StatusSubmitting
	rec := w.record
	w.mu.Unlock()

	err := w.gateway.Submit(ctx, rec)

	w.mu.Lock()
	if err != nil {
		w.status = StatusFailed
		w.mu.Unlock()
		w.notifier.Notify(errorToast)
		return fmt.Errorf("submit registration: %w", err)
	}
	w.status = StatusSucceeded
	w.step = StepSubmitted
	w.mu.Unlock()

	w.notifier.Notify(successToast)
	return nil
}

// Reset clears the record after a successful submission.
func (w *Wizard) Reset() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepSubmitted {
		return false
	}
	w.record = trial.Registration{}
	w.step = trial.StepParent
	w.status = StatusIdle
	return true
}

// Progress is the presentational completion ratio.
func (w *Wizard) Progress() float64 {
	s := w.Step()
	if s == StepSubmitted {
		return 1
	}
	return float64(s+1) / float64(trial.TotalSteps)
}

// Confirmation returns the success card copy; ok is false until submitted.
func (w *Wizard) Confirmation() (c trial.Confirmation, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepSubmitted {
		return trial.Confirmation{}, false
	}
	return trial.NewConfirmation(w.record), true
}
