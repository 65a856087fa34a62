// Package security holds the cryptographic primitives of the auth core:
// password hashing, signed credential tokens and single-use opaque tokens.
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// bcrypt only looks at the first 72 bytes; longer input would silently
// collide with its own prefix.
const maxPasswordBytes = 72

var (
	ErrEmptyPassword   = fmt.Errorf("%w: password cannot be empty", domain.ErrValidation)
	ErrPasswordTooLong = fmt.Errorf("%w: password exceeds %d bytes", domain.ErrValidation, maxPasswordBytes)
)

// BcryptHasher hashes and verifies passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given cost. Costs outside
// bcrypt's accepted range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt digest of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash is a
// mismatch, not an error.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
