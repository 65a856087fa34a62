package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/projectcamp/auth-service/internal/core/ports"
)

// SMTPConfig captures the settings for the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers notifications through an SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

var _ ports.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a mailer for cfg. It does not dial; connections are
// opened per Send. Authentication is only used when a username is set.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp mailer: host and sender are required")
	}

	opts := []gomail.Option{gomail.WithTLSPolicy(gomail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send delivers n as a plain-text mail with an optional HTML alternative.
func (m *SMTPMailer) Send(ctx context.Context, n ports.Notification) error {
	msg, err := buildMessage(m.from, n)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", n.Recipient, err)
	}
	return nil
}

func buildMessage(from string, n ports.Notification) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp sender %q: %w", from, err)
	}
	if err := msg.To(n.Recipient); err != nil {
		return nil, fmt.Errorf("smtp recipient %q: %w", n.Recipient, err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, n.Body)
	if n.HTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, n.HTML)
	}
	return msg, nil
}
