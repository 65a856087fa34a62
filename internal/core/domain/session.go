package domain

import "time"

// AuthMode selects how a successful login is represented to the client.
type AuthMode string

const (
	// ModeToken issues a signed access/refresh token pair.
	ModeToken AuthMode = "token"
	// ModeSession creates a server-side session record.
	ModeSession AuthMode = "session"
)

// Valid reports whether m is a known mode.
func (m AuthMode) Valid() bool {
	return m == ModeToken || m == ModeSession
}

// Session is a server-held login. ID is the digest of the identifier the
// client holds; the raw identifier is never stored.
type Session struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principalId"`
	UserAgent   string    `json:"userAgent,omitempty"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TokenKind separates access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)
