package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// OpaqueTokenBytes is the entropy of a generated token: 20 bytes = 160 bits,
// 40 hex chars.
const OpaqueTokenBytes = 20

// DefaultGrantWindow is how long verification and reset tokens stay valid.
const DefaultGrantWindow = 20 * time.Minute

// OpaqueToken is a freshly generated single-use token. Unhashed goes to the
// user out of band; only Hashed is stored.
type OpaqueToken struct {
	Unhashed  string
	Hashed    string
	ExpiresAt time.Time
}

// Grant returns the storable half of t.
func (t OpaqueToken) Grant() *domain.Grant {
	return &domain.Grant{Hash: t.Hashed, ExpiresAt: t.ExpiresAt}
}

// OpaqueTokenFactory generates opaque tokens with a fixed validity window.
type OpaqueTokenFactory struct {
	window time.Duration
	now    func() time.Time
}

// NewOpaqueTokenFactory returns a factory whose tokens expire window after
// generation. A nil now means time.Now.
func NewOpaqueTokenFactory(window time.Duration, now func() time.Time) *OpaqueTokenFactory {
	if now == nil {
		now = time.Now
	}
	return &OpaqueTokenFactory{window: window, now: now}
}

// Window returns the validity window of generated tokens.
func (f *OpaqueTokenFactory) Window() time.Duration {
	return f.window
}

// Generate draws a new token from crypto/rand.
func (f *OpaqueTokenFactory) Generate() (OpaqueToken, error) {
	buf := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return OpaqueToken{}, fmt.Errorf("generate opaque token: %w", err)
	}
	unhashed := hex.EncodeToString(buf)
	return OpaqueToken{
		Unhashed:  unhashed,
		Hashed:    HashToken(unhashed),
		ExpiresAt: f.now().Add(f.window),
	}, nil
}

// HashToken is the SHA-256 hex digest used to store opaque tokens, session
// identifiers and refresh records. A fast digest is enough: the input is
// already high-entropy.
func HashToken(unhashed string) string {
	sum := sha256.Sum256([]byte(unhashed))
	return hex.EncodeToString(sum[:])
}

// Matches reports in constant time whether unhashed digests to hashed.
func Matches(unhashed, hashed string) bool {
	if unhashed == "" || hashed == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(unhashed)), []byte(hashed)) == 1
}
