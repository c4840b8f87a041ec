package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("exp-1", "bulk/attendance_bulk_2024-03-01.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	file, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", file.ExportID)
	assert.Equal(t, "bulk/attendance_bulk_2024-03-01.csv", file.Path)
	assert.WithinDuration(t, expiresAt, file.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	now := time.Now()
	signer.now = func() time.Time { return now }
	token, _, err := signer.Generate("exp-1", "bulk/file.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = signer.Parse(token, false)
	assert.ErrorIs(t, err, ErrTokenExpired)

	file, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "bulk/file.csv", file.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("exp-1", "bulk/file.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "exp-2"
	_, err = signer.Parse(strings.Join(parts, "."), false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Parse(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("garbage", false)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Generate("exp-1", "file.csv")
	assert.Error(t, err)
}

func TestSignedURLSignerGenerateWithTTL(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	token, expiresAt, err := signer.GenerateWithTTL("sess-1", "checkin", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), expiresAt)

	signer.now = func() time.Time { return now.Add(11 * time.Minute) }
	_, err = signer.Parse(token, false)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, _, err = signer.GenerateWithTTL("sess-1", "checkin", 0)
	assert.Error(t, err)
}
