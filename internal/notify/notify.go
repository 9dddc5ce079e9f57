// Package notify delivers composed recommendation messages to recipients.
// Senders never retry; a failed Send returns an *upstream.Error that says
// whether redelivery could help.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/config"
)

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Receipt identifies an accepted message.
type Receipt struct {
	Provider  string
	MessageID string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// ErrMissingSender is returned by New when no From address is configured.
var ErrMissingSender = errors.New("notify.sender is required")

// New creates the Sender selected by cfg.Provider.
func New(ctx context.Context, cfg config.NotifyConfig, log zerolog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "ses", "":
		if cfg.Sender == "" {
			return nil, ErrMissingSender
		}
		return NewSES(ctx, cfg)

	case "smtp":
		if cfg.Sender == "" {
			return nil, ErrMissingSender
		}
		if cfg.SMTPAddr == "" {
			return nil, errors.New("notify.smtp_addr is required for the smtp provider")
		}
		return NewSMTP(cfg), nil

	case "stdout":
		log.Warn().Msg("notifications are written to stdout and not delivered")
		return NewStdout(os.Stdout), nil

	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Provider)
	}
}
