package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy returned by the auth core. Boundary code matches on these
// with errors.Is; finer-grained errors always wrap one of them.
var (
	ErrConflict           = errors.New("principal already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrExpired   = errors.New("invalid or expired token")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrValidation         = errors.New("validation failed")
	ErrUnavailable        = errors.New("service unavailable")
)

// ErrSamePassword is returned by a password change whose new password equals
// the current one.
var ErrSamePassword = fmt.Errorf("%w: new password must differ from the current one", ErrValidation)
