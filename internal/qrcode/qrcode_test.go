package qrcode

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef-test-key"

func TestSignAndVerify(t *testing.T) {
	s, err := NewSigner(testKey, 0)
	require.NoError(t, err)

	token, err := s.Sign("elevator-1", "code-1")
	require.NoError(t, err)

	elevatorID, codeID, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "elevator-1", elevatorID)
	assert.Equal(t, "code-1", codeID)
}

func TestVerifyRejectsTamperingAndOtherKeys(t *testing.T) {
	s, err := NewSigner(testKey, 0)
	require.NoError(t, err)
	other, err := NewSigner("another-signing-key-xyz", 0)
	require.NoError(t, err)

	token, err := s.Sign("elevator-1", "code-1")
	require.NoError(t, err)

	_, _, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = s.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyHonoursExpiry(t *testing.T) {
	s, err := NewSigner(testKey, time.Hour)
	require.NoError(t, err)
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	token, err := s.Sign("e", "c")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(30 * time.Minute) }
	_, _, err = s.Verify(token)
	assert.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, _, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner("short", 0)
	assert.Error(t, err)
}

func TestURLAndPNG(t *testing.T) {
	assert.Equal(t, "https://lifts.example.com/qr/abc", URL("https://lifts.example.com/", "abc"))

	img, err := PNG(URL("https://lifts.example.com", "abc"), 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))
}
