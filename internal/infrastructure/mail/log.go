package mail

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/projectcamp/auth-service/internal/core/ports"
)

// LogMailer writes notifications to the log instead of sending them. It is
// used when no SMTP relay is configured.
type LogMailer struct {
	log zerolog.Logger
}

var _ ports.Mailer = (*LogMailer)(nil)

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mail").Logger()}
}

func (m *LogMailer) Send(_ context.Context, n ports.Notification) error {
	m.log.Info().
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Str("body", n.Body).
		Msg("mail not sent, no relay configured")
	return nil
}
