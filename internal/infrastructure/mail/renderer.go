// Package mail renders and delivers the out-of-band mails of the auth flows.
package mail

import (
	"fmt"

	"github.com/matcornic/hermes/v2"

	"github.com/projectcamp/auth-service/internal/core/ports"
)

const (
	subjectVerifyEmail   = "Please verify your email address"
	subjectPasswordReset = "Password reset request"
	buttonColor          = "#1a73e8"
	helpOutro            = "Need help, or have questions? Just reply to this email, we'd love to help."
)

// Renderer builds verification and reset mails with hermes.
type Renderer struct {
	h hermes.Hermes
}

var _ ports.MessageRenderer = (*Renderer)(nil)

// NewRenderer returns a Renderer branded with productName, linking to productLink.
func NewRenderer(productName, productLink string) *Renderer {
	return &Renderer{h: hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name: productName,
			Link: productLink,
		},
	}}
}

func (r *Renderer) EmailVerification(name, link string) (ports.Notification, error) {
	return r.render(subjectVerifyEmail, hermes.Body{
		Name:   name,
		Intros: []string{fmt.Sprintf("Welcome to %s!", r.h.Product.Name)},
		Actions: []hermes.Action{{
			Instructions: "To verify your account, please click the button below:",
			Button:       hermes.Button{Color: buttonColor, Text: "Verify Account", Link: link},
		}},
		Outros: []string{helpOutro},
	})
}

func (r *Renderer) PasswordReset(name, link string) (ports.Notification, error) {
	return r.render(subjectPasswordReset, hermes.Body{
		Name:   name,
		Intros: []string{"You have requested to reset your password for your account."},
		Actions: []hermes.Action{{
			Instructions: "To reset your password, please click the button below:",
			Button:       hermes.Button{Color: buttonColor, Text: "Reset Password", Link: link},
		}},
		Outros: []string{
			"If you did not request a password reset, no further action is required on your part.",
			helpOutro,
		},
	})
}

func (r *Renderer) render(subject string, body hermes.Body) (ports.Notification, error) {
	email := hermes.Email{Body: body}

	html, err := r.h.GenerateHTML(email)
	if err != nil {
		return ports.Notification{}, fmt.Errorf("render %q html: %w", subject, err)
	}
	text, err := r.h.GeneratePlainText(email)
	if err != nil {
		return ports.Notification{}, fmt.Errorf("render %q text: %w", subject, err)
	}
	return ports.Notification{Subject: subject, Body: text, HTML: html}, nil
}
