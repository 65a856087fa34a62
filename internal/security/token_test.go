package security_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/security"
)

const (
	accessSecret  = "access-secret-0123456789abcdef0123456789"
	refreshSecret = "refresh-secret-0123456789abcdef012345678"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCodec(t *testing.T, c *clock) *security.TokenCodec {
	t.Helper()
	codec, err := security.NewTokenCodec(security.CodecConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Issuer:        "auth-service",
		Now:           c.Now,
	})
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec_RequiresSecrets(t *testing.T) {
	tests := []struct {
		name string
		cfg  security.CodecConfig
	}{
		{name: "no secrets", cfg: security.CodecConfig{}},
		{name: "missing refresh secret", cfg: security.CodecConfig{AccessSecret: accessSecret}},
		{name: "missing access secret", cfg: security.CodecConfig{RefreshSecret: refreshSecret}},
		{name: "shared secret", cfg: security.CodecConfig{AccessSecret: accessSecret, RefreshSecret: accessSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := security.NewTokenCodec(tt.cfg)
			assert.ErrorIs(t, err, security.ErrMissingSecret)
			assert.Nil(t, codec)
		})
	}
}

func TestTokenCodec_IssueVerify(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, c)

	token, exp, err := codec.Issue("p-1", domain.TokenKindAccess, map[string]string{
		"email":    "a@x.com",
		"username": "alice",
		"sub":      "someone-else",
	}, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, c.now.Add(15*time.Minute), exp)

	vt, err := codec.Verify(token, domain.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "p-1", vt.PrincipalID)
	assert.Equal(t, domain.TokenKindAccess, vt.Kind)
	assert.Equal(t, "a@x.com", vt.Claims["email"])
	assert.Equal(t, "alice", vt.Claims["username"])
	assert.Equal(t, c.now, vt.IssuedAt)
	assert.Equal(t, exp, vt.ExpiresAt)
}

func TestTokenCodec_Expiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{now: start}
	codec := newCodec(t, c)

	token, exp, err := codec.Issue("p-1", domain.TokenKindAccess, nil, 15*time.Minute)
	require.NoError(t, err)

	c.now = exp.Add(-time.Second)
	_, err = codec.Verify(token, domain.TokenKindAccess)
	require.NoError(t, err)

	c.now = exp
	_, err = codec.Verify(token, domain.TokenKindAccess)
	assert.ErrorIs(t, err, security.ErrExpired)

	c.now = exp.Add(time.Hour)
	_, err = codec.Verify(token, domain.TokenKindAccess)
	assert.ErrorIs(t, err, security.ErrExpired)
}

func TestTokenCodec_KindSeparation(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, c)

	access, _, err := codec.Issue("p-1", domain.TokenKindAccess, nil, time.Minute)
	require.NoError(t, err)
	refresh, _, err := codec.Issue("p-1", domain.TokenKindRefresh, nil, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(refresh, domain.TokenKindAccess)
	assert.ErrorIs(t, err, security.ErrWrongKind)

	_, err = codec.Verify(access, domain.TokenKindRefresh)
	assert.ErrorIs(t, err, security.ErrWrongKind)
}

func TestTokenCodec_RefreshCarriesNoExtraClaims(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, c)

	refresh, _, err := codec.Issue("p-1", domain.TokenKindRefresh, map[string]string{"email": "a@x.com"}, time.Hour)
	require.NoError(t, err)

	vt, err := codec.Verify(refresh, domain.TokenKindRefresh)
	require.NoError(t, err)
	assert.Empty(t, vt.Claims)
}

func TestTokenCodec_UniquePerIssue(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, c)

	t1, _, err := codec.Issue("p-1", domain.TokenKindRefresh, nil, time.Hour)
	require.NoError(t, err)
	t2, _, err := codec.Issue("p-1", domain.TokenKindRefresh, nil, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestTokenCodec_InvalidSignature(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, c)

	token, _, err := codec.Issue("p-1", domain.TokenKindAccess, map[string]string{"username": "alice"}, time.Minute)
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)
		forged := strings.Replace(string(payload), `"p-1"`, `"p-2"`, 1)
		parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

		_, err = codec.Verify(strings.Join(parts, "."), domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := security.NewTokenCodec(security.CodecConfig{
			AccessSecret:  "another-access-secret-0123456789abcdef",
			RefreshSecret: refreshSecret,
			Issuer:        "auth-service",
		})
		require.NoError(t, err)
		foreign, _, err := other.Issue("p-1", domain.TokenKindAccess, nil, time.Minute)
		require.NoError(t, err)

		_, err = codec.Verify(foreign, domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)
	})

	t.Run("unknown kind", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "p-1",
			"kind": "admin",
			"iss":  "auth-service",
			"exp":  jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := raw.SignedString([]byte(accessSecret))
		require.NoError(t, err)

		_, err = codec.Verify(signed, domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)
	})

	t.Run("alg none", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub":  "p-1",
			"kind": "access",
			"iss":  "auth-service",
			"exp":  jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(signed, domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := codec.Verify("not.a.jwt", domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)

		_, err = codec.Verify("", domain.TokenKindAccess)
		assert.ErrorIs(t, err, security.ErrInvalidSignature)
	})
}
