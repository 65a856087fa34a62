package domain

import (
	"strings"
	"time"
)

// Principal is a registered account. Credential material never leaves the
// process in its JSON form.
type Principal struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	EmailVerified bool   `json:"isEmailVerified"`

	PasswordHash     string `json:"-"`
	RefreshTokenHash string `json:"-"`
	Verification     *Grant `json:"-"`
	PasswordReset    *Grant `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Grant is the stored half of a single-use opaque token: the digest of the
// value sent out of band, and the instant after which it stops working.
type Grant struct {
	Hash      string
	ExpiresAt time.Time
}

// ActiveAt reports whether the grant can still be consumed at t.
func (g *Grant) ActiveAt(t time.Time) bool {
	return g != nil && g.Hash != "" && t.Before(g.ExpiresAt)
}

// TokenField selects which grant on a Principal an opaque token targets.
type TokenField string

const (
	TokenFieldEmailVerification TokenField = "email_verification"
	TokenFieldPasswordReset     TokenField = "password_reset"
)

// Grant returns the grant stored under field.
func (p *Principal) Grant(field TokenField) *Grant {
	switch field {
	case TokenFieldEmailVerification:
		return p.Verification
	case TokenFieldPasswordReset:
		return p.PasswordReset
	}
	return nil
}

// NormalizeIdentifier lower-cases and trims an email or username so lookups
// and uniqueness are case-insensitive.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
