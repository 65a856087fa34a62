package ports

import (
	"context"
	"errors"
	"time"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// ErrPreconditionFailed is returned by UpdatePrincipal when one of the
// update's Expect* conditions no longer holds.
var ErrPreconditionFailed = errors.New("principal changed concurrently")

// PrincipalUpdate is a partial update applied atomically to one principal.
// Nil pointers and false flags leave the field untouched.
type PrincipalUpdate struct {
	PasswordHash      *string
	MarkEmailVerified bool
	// RefreshTokenHash overwrites the refresh record; an empty string clears it.
	RefreshTokenHash *string

	SetVerification    *domain.Grant
	ClearVerification  bool
	SetPasswordReset   *domain.Grant
	ClearPasswordReset bool

	// ExpectRefreshTokenHash makes the update conditional on the stored
	// refresh record still holding this value.
	ExpectRefreshTokenHash *string
	// ExpectGrant makes the update conditional on the named grant still
	// holding this hash.
	ExpectGrant *GrantMatch
}

// GrantMatch names a grant and the hash it must hold.
type GrantMatch struct {
	Field domain.TokenField
	Hash  string
}

// PrincipalRepository persists principals. Implementations must reject
// duplicate emails or usernames with domain.ErrConflict and apply each
// UpdatePrincipal call atomically.
type PrincipalRepository interface {
	// FindPrincipalByEmailOrUsername matches on either key; empty keys match nothing.
	FindPrincipalByEmailOrUsername(ctx context.Context, email, username string) (*domain.Principal, error)
	FindPrincipalByID(ctx context.Context, id string) (*domain.Principal, error)
	// FindPrincipalByToken returns the principal whose grant under field holds
	// hashed and has not expired at now.
	FindPrincipalByToken(ctx context.Context, field domain.TokenField, hashed string, now time.Time) (*domain.Principal, error)
	CreatePrincipal(ctx context.Context, principal *domain.Principal) (*domain.Principal, error)
	UpdatePrincipal(ctx context.Context, id string, update PrincipalUpdate) (*domain.Principal, error)
}

// SessionRepository persists server-side sessions. Expiry, if any, is the
// repository's concern.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	FindSession(ctx context.Context, id string) (*domain.Session, error)
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error
}

// SessionStore is the full persistence boundary of the auth core.
type SessionStore interface {
	PrincipalRepository
	SessionRepository
}
