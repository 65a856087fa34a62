package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrWrongKind        = errors.New("token kind mismatch")
)

// ErrMissingSecret is returned when the codec is built without usable secrets.
var ErrMissingSecret = errors.New("token codec: access and refresh secrets are required and must differ")

const claimKind = "kind"

// reserved claims cannot be overridden by caller-supplied claims.
var reserved = map[string]struct{}{
	"sub": {}, "iat": {}, "exp": {}, "nbf": {}, "jti": {}, "iss": {}, "aud": {}, claimKind: {},
}

// CodecConfig is the process-wide signing configuration, loaded once at startup.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// VerifiedToken is the decoded payload of a token that passed verification.
type VerifiedToken struct {
	PrincipalID string
	Kind        domain.TokenKind
	Claims      map[string]string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec issues and verifies HS256-signed access and refresh tokens.
// The two kinds are signed with independent secrets.
type TokenCodec struct {
	secrets map[domain.TokenKind][]byte
	issuer  string
	now     func() time.Time
	parser  *jwt.Parser
}

// NewTokenCodec validates cfg and returns a codec.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.AccessSecret == cfg.RefreshSecret {
		return nil, ErrMissingSecret
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &TokenCodec{
		secrets: map[domain.TokenKind][]byte{
			domain.TokenKindAccess:  []byte(cfg.AccessSecret),
			domain.TokenKindRefresh: []byte(cfg.RefreshSecret),
		},
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Issue signs a token of the given kind for principalID, valid for ttl.
// Refresh tokens ignore claims so a leaked one reveals nothing but the id.
func (c *TokenCodec) Issue(principalID string, kind domain.TokenKind, claims map[string]string, ttl time.Duration) (string, time.Time, error) {
	secret, ok := c.secrets[kind]
	if !ok {
		return "", time.Time{}, fmt.Errorf("issue token: unknown kind %q", kind)
	}

	now := c.now()
	exp := jwt.NewNumericDate(now.Add(ttl))
	mc := jwt.MapClaims{
		"sub":     principalID,
		"iat":     jwt.NewNumericDate(now),
		"exp":     exp,
		"jti":     uuid.NewString(),
		claimKind: string(kind),
	}
	if c.issuer != "" {
		mc["iss"] = c.issuer
	}
	if kind == domain.TokenKindAccess {
		for k, v := range claims {
			if _, skip := reserved[k]; !skip {
				mc[k] = v
			}
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp.Time, nil
}

// Verify checks the signature, expiry and kind of token.
func (c *TokenCodec) Verify(token string, expected domain.TokenKind) (*VerifiedToken, error) {
	claims := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kind, _ := claims[claimKind].(string)
		secret, ok := c.secrets[domain.TokenKind(kind)]
		if !ok {
			return nil, ErrInvalidSignature
		}
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	kind := domain.TokenKind(claims[claimKind].(string))
	if kind != expected {
		return nil, ErrWrongKind
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidSignature
	}

	vt := &VerifiedToken{
		PrincipalID: sub,
		Kind:        kind,
		Claims:      make(map[string]string),
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		vt.IssuedAt = iat.Time.UTC()
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		vt.ExpiresAt = exp.Time.UTC()
	}
	for k, v := range claims {
		if _, skip := reserved[k]; skip {
			continue
		}
		if s, ok := v.(string); ok {
			vt.Claims[k] = s
		}
	}
	return vt, nil
}
