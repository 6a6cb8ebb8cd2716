package transport

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"
)

// ConsoleDeliverer is the last-resort transport used when no SMTP host is
// configured: it logs the message instead of sending it. Useful for local
// runs without MailHog.
type ConsoleDeliverer struct {
	logger zerolog.Logger
}

// NewConsoleDeliverer constructs a console deliverer.
func NewConsoleDeliverer(logger zerolog.Logger) *ConsoleDeliverer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ConsoleDeliverer{logger: logger}
}

// Deliver implements Deliverer by logging the message.
func (d *ConsoleDeliverer) Deliver(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("console transport: message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := msg.BodyText
	if len(body) > 300 {
		body = body[:300] + "..."
	}

	d.logger.Info().
		Str("message_id", msg.MessageID).
		Str("tier", msg.Tier.String()).
		Bool("encrypted", msg.Encrypted).
		Str("to", msg.ToAddress).
		Str("subject", msg.Subject).
		Str("body", body).
		Msg("console transport: no SMTP configured, message logged only")

	return nil
}
