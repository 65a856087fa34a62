package ports

import "context"

// Notification is an out-of-band message such as a verification mail.
type Notification struct {
	Recipient string
	Subject   string
	// Body is the plain-text part; HTML, when set, is sent as an alternative.
	Body string
	HTML string
}

// Notifier hands a notification off for delivery. Implementations must not
// block the caller on delivery; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Mailer delivers one notification synchronously.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// MessageRenderer builds the subject and body of the out-of-band mails the
// auth flows send. The caller fills in the recipient.
type MessageRenderer interface {
	EmailVerification(name, link string) (Notification, error)
	PasswordReset(name, link string) (Notification, error)
}
