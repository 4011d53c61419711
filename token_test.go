package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/goliatone/go-credentials"
)

func TestGenerateToken(t *testing.T) {
	token, err := credentials.GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 64, "32 random bytes hex encoded")

	other, err := credentials.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestDigest(t *testing.T) {
	token := "a3f1de9b"

	digest := credentials.Digest(token)
	assert.Len(t, digest, 64, "sha256 hex")
	assert.Equal(t, digest, credentials.Digest(token), "deterministic")
	assert.NotEqual(t, digest, credentials.Digest("a3f1de9c"))
	assert.NotEqual(t, token, digest)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, credentials.SecureCompare("same-value", "same-value"))
	assert.False(t, credentials.SecureCompare("same-value", "other-value"))
	assert.False(t, credentials.SecureCompare("short", "longer-value"))
	assert.True(t, credentials.SecureCompare("", ""))
}
