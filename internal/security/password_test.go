package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRequiresMinimumLength(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestHashPasswordAndVerify(t *testing.T) {
	password := "this-is-a-long-password"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "v1", parts[0])

	assert.True(t, VerifyPassword(password, hash))
	assert.False(t, VerifyPassword("wrong-password-value", hash))
}

func TestHashPasswordUsesFreshSalt(t *testing.T) {
	a, err := HashPassword("another-long-password")
	require.NoError(t, err)
	b, err := HashPassword("another-long-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	hash, err := HashPassword("this-is-a-long-password")
	require.NoError(t, err)
	parts := strings.Split(hash, "$")

	cases := []string{
		"",
		"plain",
		"v2$" + strings.Join(parts[1:], "$"),
		"v1$1000$" + parts[2] + "$" + parts[3],
		"v1$" + parts[1] + "$***$" + parts[3],
		"v1$" + parts[1] + "$" + parts[2] + "$c2hvcnQ",
	}
	for _, encoded := range cases {
		assert.False(t, VerifyPassword("this-is-a-long-password", encoded), encoded)
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")

	_, err = RandomToken(0)
	assert.Error(t, err)
}
