package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectcamp/auth-service/internal/security"
)

func TestOpaqueTokenFactory_Generate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	factory := security.NewOpaqueTokenFactory(security.DefaultGrantWindow, func() time.Time { return now })

	t.Run("token carries 160 bits and a sha256 digest", func(t *testing.T) {
		tok, err := factory.Generate()
		require.NoError(t, err)
		assert.Len(t, tok.Unhashed, 40)
		assert.Len(t, tok.Hashed, 64)
		assert.NotEqual(t, tok.Unhashed, tok.Hashed)
		assert.Equal(t, security.HashToken(tok.Unhashed), tok.Hashed)
	})

	t.Run("expiry is a fixed window from now", func(t *testing.T) {
		tok, err := factory.Generate()
		require.NoError(t, err)
		assert.Equal(t, now.Add(20*time.Minute), tok.ExpiresAt)

		grant := tok.Grant()
		assert.Equal(t, tok.Hashed, grant.Hash)
		assert.Equal(t, tok.ExpiresAt, grant.ExpiresAt)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			tok, err := factory.Generate()
			require.NoError(t, err)
			_, dup := seen[tok.Unhashed]
			require.False(t, dup)
			seen[tok.Unhashed] = struct{}{}
		}
	})
}

func TestMatches(t *testing.T) {
	tok, err := security.NewOpaqueTokenFactory(time.Minute, nil).Generate()
	require.NoError(t, err)

	assert.True(t, security.Matches(tok.Unhashed, tok.Hashed))
	assert.False(t, security.Matches("wrongtoken", tok.Hashed))
	assert.False(t, security.Matches(tok.Hashed, tok.Hashed))
	assert.False(t, security.Matches("", tok.Hashed))
	assert.False(t, security.Matches(tok.Unhashed, ""))
}
