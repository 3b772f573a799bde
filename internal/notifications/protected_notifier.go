package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type ProtectedNotifierConfig struct {
	Timeout time.Duration // per channel send
	Breaker BreakerConfig
}

// ProtectedNotifier fans a confirmation out to every channel the family left
// a contact for. Each channel has its own breaker, so a WhatsApp outage does
// not hold back email. The confirmation counts as delivered once any channel
// succeeds; it only fails when no channel got through.
type ProtectedNotifier struct {
	inner   Notifier
	log     *slog.Logger
	timeout time.Duration

	breakers map[Channel]*breaker
}

func NewProtectedNotifier(inner Notifier, log *slog.Logger, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	return newProtectedNotifier(inner, log, cfg, time.Now)
}

func newProtectedNotifier(inner Notifier, log *slog.Logger, cfg ProtectedNotifierConfig, now func() time.Time) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	breakers := make(map[Channel]*breaker, len(Channels))
	for _, ch := range Channels {
		breakers[ch] = newBreaker(cfg.Breaker, now)
	}

	return &ProtectedNotifier{
		inner:    inner,
		log:      log,
		timeout:  cfg.Timeout,
		breakers: breakers,
	}
}

func (n *ProtectedNotifier) SendTrialConfirmation(ctx context.Context, input TrialConfirmationInput) error {
	channels := input.Channels()
	if len(channels) == 0 {
		return ErrNoChannel
	}

	var errs []error
	for _, ch := range channels {
		if err := n.send(ctx, ch, input.Only(ch)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}

	if len(errs) == len(channels) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		n.log.WarnContext(ctx, "confirmation channel failed, delivered on another",
			"document_id", input.DocumentID, "err", err)
	}
	return nil
}

func (n *ProtectedNotifier) send(ctx context.Context, ch Channel, input TrialConfirmationInput) error {
	b := n.breakers[ch]
	if !b.acquire() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.inner.SendTrialConfirmation(sendCtx, input)
	b.release(err)
	return err
}

// State reports closed, open or half_open for ch.
func (n *ProtectedNotifier) State(ch Channel) string {
	b, ok := n.breakers[ch]
	if !ok {
		return ""
	}
	return b.State()
}
