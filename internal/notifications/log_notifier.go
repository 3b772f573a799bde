package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrProviderDown = errors.New("provider down (simulated)")

type LogNotifierConfig struct {
	// Delay simulates a slow provider.
	Delay time.Duration
	// Fail simulates a provider outage.
	Fail bool
}

// LogNotifier stands in for a real email/WhatsApp provider: it only logs.
type LogNotifier struct {
	log *slog.Logger
	cfg LogNotifierConfig
}

func NewLogNotifier(log *slog.Logger, cfg LogNotifierConfig) *LogNotifier {
	return &LogNotifier{log: log, cfg: cfg}
}

func (n *LogNotifier) SendTrialConfirmation(ctx context.Context, in TrialConfirmationInput) error {
	if n.cfg.Delay > 0 {
		select {
		case <-time.After(n.cfg.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.cfg.Fail {
		return ErrProviderDown
	}

	n.log.InfoContext(ctx, "notification.trial_confirmation",
		"document_id", in.DocumentID,
		"channels", in.Channels(),
		"email", in.Email,
		"whatsapp", in.WhatsApp,
		"parent", in.ParentName,
		"child", in.ChildName,
		"trial_date", in.TrialDate,
		"trial_time", in.TrialTime,
	)
	return nil
}
