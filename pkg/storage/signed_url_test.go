package storage

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerIssueAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Issue("res-1", "res-1.pdf")
	require.NoError(t, err)

	grant, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "res-1", grant.ResourceID)
	assert.Equal(t, "res-1.pdf", grant.Path)
	assert.True(t, grant.ExpiresAt.Equal(expiresAt))

	_, _, err = signer.Issue("res-1", "")
	assert.Error(t, err)
}

func TestSignedURLSignerExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", 10*time.Minute)
	signer.now = func() time.Time { return now }

	token, _, err := signer.Issue("res-1", "res-1.pdf")
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = signer.Verify(token)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestSignedURLSignerRejectsForgedGrants(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Issue("res-1", "res-1.pdf")
	require.NoError(t, err)
	_, signature, _ := strings.Cut(token, ".")

	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"rid":"res-2","path":"res-2.pdf","exp":4102444800}`))
	_, err = signer.Verify(forged + "." + signature)
	assert.ErrorIs(t, err, ErrInvalidLink)

	_, err = NewSignedURLSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLink)

	for _, bad := range []string{"", "no-dot", token + "x", "." + signature} {
		_, err = signer.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidLink, bad)
	}
}
