// Package formui runs the trial registration wizard in a terminal.
package formui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/geocoder89/trialbooking/internal/domain/trial"
	"github.com/geocoder89/trialbooking/internal/wizard"
)

// ErrQuit is returned when the user leaves the form (":quit" or end of input).
var ErrQuit = errors.New("form abandoned")

const (
	cmdBack = ":back"
	cmdQuit = ":quit"

	barWidth = 20
)

type action int

const (
	actionNext action = iota
	actionBack
)

type Runner struct {
	wiz   *wizard.Wizard
	in    *bufio.Scanner
	out   io.Writer
	today func() time.Time
}

type Option func(*Runner)

// WithClock fixes "today" for the date checks.
func WithClock(today func() time.Time) Option {
	return func(r *Runner) {
		if today != nil {
			r.today = today
		}
	}
}

func New(gw wizard.Gateway, in io.Reader, out io.Writer, opts ...Option) *Runner {
	r := &Runner{
		in:    bufio.NewScanner(in),
		out:   out,
		today: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wiz = wizard.New(gw, wizard.WithNotifier(r))
	return r
}

func (r *Runner) Wizard() *wizard.Wizard { return r.wiz }

// Notify prints the wizard's toasts.
func (r *Runner) Notify(n wizard.Notification) {
	mark := "+"
	if n.Kind == wizard.NotifyError {
		mark = "!"
	}
	r.printf("\n[%s] %s\n    %s\n", mark, n.Title, n.Description)
}

// Run drives the wizard until the user declines to register another child.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		step := r.wiz.Step()

		if step == wizard.StepSubmitted {
			again, err := r.confirmation()
			if err != nil || !again {
				return err
			}
			r.wiz.Reset()
			continue
		}

		r.header(step)

		act, err := r.promptStep(step)
		if err != nil {
			return err
		}

		if act == actionBack {
			r.wiz.Retreat()
			continue
		}

		if step < trial.StepSchedule {
			if !r.wiz.Advance() {
				r.printf("\n  [ Continue ] is disabled until the required fields are filled in.\n")
			}
			continue
		}

		if err := r.submit(ctx); err != nil {
			return err
		}
	}
}

// submit sends the record; after a failure the user may resend it as is.
func (r *Runner) submit(ctx context.Context) error {
	if !r.wiz.CanSubmit() {
		r.printf("\n  [ Submit ] is disabled until the required fields are filled in.\n")
		return nil
	}

	for {
		r.printf("\nSubmitting...\n")

		err := r.wiz.Submit(ctx)
		if err == nil || errors.Is(err, wizard.ErrNotReady) || errors.Is(err, wizard.ErrSubmitInFlight) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retry, err := r.askYesNo("Try again?")
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
	}
}

func (r *Runner) confirmation() (bool, error) {
	c, ok := r.wiz.Confirmation()
	if !ok {
		return false, nil
	}

	r.printf("\n%s\n%s\n%s\n\n", strings.Repeat("=", 40), c.Title, c.Body)
	return r.askYesNo("Register another child?")
}

func (r *Runner) header(step trial.Step) {
	rec := r.wiz.Record()
	title, subtitle := heading(step, rec)

	r.printf("\nStep %d of %d · %s\n%s\n\n%s\n%s\n",
		int(step)+1, trial.TotalSteps, step.Title(),
		progressBar(r.wiz.Progress()),
		title, subtitle,
	)
	if step > trial.StepParent {
		r.printf("(%s to go back, %s to leave)\n", cmdBack, cmdQuit)
	}
}

func (r *Runner) promptStep(step trial.Step) (action, error) {
	for _, f := range step.Fields() {
		act, err := r.promptField(f)
		if err != nil || act == actionBack {
			return act, err
		}
	}
	return actionNext, nil
}

// promptField asks until the value passes the field's input checks. A blank
// line keeps what is already there.
func (r *Runner) promptField(f trial.Field) (action, error) {
	for {
		current := r.wiz.Record().Get(f)

		prompt := f.Label()
		if current != "" {
			prompt += " [" + current + "]"
		} else if ph := f.Placeholder(); ph != "" {
			prompt += " (" + ph + ")"
		}
		if hint := f.Hint(); hint != "" {
			r.printf("  %s\n", hint)
		}
		r.printf("%s: ", prompt)

		line, err := r.readLine()
		if err != nil {
			return actionNext, err
		}

		switch line {
		case cmdQuit:
			return actionNext, ErrQuit
		case cmdBack:
			return actionBack, nil
		case "":
			return actionNext, nil
		}

		if err := trial.CheckInput(f, line, r.today()); err != nil {
			r.printf("  %s %s\n", f.Label(), err)
			continue
		}

		if err := r.wiz.SetField(f, line); err != nil {
			return actionNext, err
		}
		return actionNext, nil
	}
}

func (r *Runner) askYesNo(question string) (bool, error) {
	r.printf("%s [y/N]: ", question)

	line, err := r.readLine()
	if err != nil {
		return false, err
	}
	if line == cmdQuit {
		return false, ErrQuit
	}

	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (r *Runner) readLine() (string, error) {
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", ErrQuit
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func heading(step trial.Step, rec trial.Registration) (string, string) {
	switch step {
	case trial.StepParent:
		return "Welcome! Let's get started.", "First, we'd love to know your name."
	case trial.StepContact:
		return fmt.Sprintf("Great, %s!", rec.ParentName), "How can we reach you?"
	case trial.StepChild:
		return fmt.Sprintf("Nice to meet you, %s!", rec.ParentName), "Now, tell us about your child."
	case trial.StepLocation:
		return "Where are you located?", "This helps us schedule the class in your local time."
	case trial.StepSchedule:
		return "When would you like the trial class?",
			fmt.Sprintf("Choose a date and time that works best for %s in your local timezone.", rec.ChildName)
	default:
		return "", ""
	}
}

func progressBar(p float64) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p*barWidth + 0.5)
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("#", filled),
		strings.Repeat(".", barWidth-filled),
		int(p*100+0.5),
	)
}
