package notifications

import (
	"context"
	"errors"
	"strings"
)

var ErrNoChannel = errors.New("no contact channel")

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

var Channels = []Channel{ChannelEmail, ChannelWhatsApp}

type TrialConfirmationInput struct {
	DocumentID string
	ParentName string
	ChildName  string
	Email      string
	WhatsApp   string
	TrialDate  string
	TrialTime  string
}

// Channels lists the channels with a non-blank contact, email first.
func (in TrialConfirmationInput) Channels() []Channel {
	var out []Channel
	if strings.TrimSpace(in.Email) != "" {
		out = append(out, ChannelEmail)
	}
	if strings.TrimSpace(in.WhatsApp) != "" {
		out = append(out, ChannelWhatsApp)
	}
	return out
}

// Only returns a copy addressed to ch alone.
func (in TrialConfirmationInput) Only(ch Channel) TrialConfirmationInput {
	switch ch {
	case ChannelEmail:
		in.WhatsApp = ""
	case ChannelWhatsApp:
		in.Email = ""
	}
	return in
}

type Notifier interface {
	SendTrialConfirmation(ctx context.Context, input TrialConfirmationInput) error
}
