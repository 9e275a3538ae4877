// Package mailer abstracts outbound email. Delivery failures on verification
// and welcome mail are never allowed to fail the primary operation.
package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer sends a single message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outbound mail to the log instead of delivering it. It is
// the default implementation for development and tests.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer on the given logger.
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// Send logs the message and always succeeds.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("outbound mail")
	return nil
}
