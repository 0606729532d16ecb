package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidLink is returned for any token whose signature or grant does not check out.
	ErrInvalidLink = errors.New("invalid download link")
	// ErrLinkExpired is returned for a well-signed token past its expiry.
	ErrLinkExpired = errors.New("download link expired")
)

// DownloadGrant is what a signed link authorises: one stored file of one resource until ExpiresAt.
type DownloadGrant struct {
	ResourceID string
	Path       string
	ExpiresAt  time.Time
}

type grantClaims struct {
	ResourceID string `json:"rid"`
	Path       string `json:"path"`
	Expires    int64  `json:"exp"`
}

// SignedURLSigner issues and verifies session-less download tokens. A token is the
// base64url JSON grant followed by its HMAC-SHA256, so it is bound to the stored path:
// replacing the file invalidates links issued for the old one.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer. Links live for ttl, defaulting to 30 minutes.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a grant for the resource's stored file.
func (s *SignedURLSigner) Issue(resourceID, path string) (string, time.Time, error) {
	if resourceID == "" || path == "" {
		return "", time.Time{}, errors.New("resource id and stored path are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	raw, err := json.Marshal(grantClaims{ResourceID: resourceID, Path: path, Expires: expiresAt.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode grant: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.sign(payload), expiresAt, nil
}

// Verify checks the signature and expiry and returns the grant.
func (s *SignedURLSigner) Verify(token string) (DownloadGrant, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return DownloadGrant{}, ErrInvalidLink
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(signature)) {
		return DownloadGrant{}, ErrInvalidLink
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return DownloadGrant{}, ErrInvalidLink
	}
	var claims grantClaims
	if err := json.Unmarshal(raw, &claims); err != nil || claims.ResourceID == "" || claims.Path == "" {
		return DownloadGrant{}, ErrInvalidLink
	}

	grant := DownloadGrant{
		ResourceID: claims.ResourceID,
		Path:       claims.Path,
		ExpiresAt:  time.Unix(claims.Expires, 0),
	}
	if !s.now().Before(grant.ExpiresAt) {
		return DownloadGrant{}, ErrLinkExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
