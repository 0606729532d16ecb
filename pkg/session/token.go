// Package session implements the opaque session token and its signed cookie encoding.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCookie is returned for tampered, malformed or expired cookie values.
var ErrInvalidCookie = errors.New("invalid session cookie")

const tokenBytes = 32

// NewToken returns a random URL-safe session token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken derives the storage key for a token. Only the hash is persisted, so a leaked
// sessions table cannot be replayed as cookies.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Claims is the signed cookie payload.
type Claims struct {
	jwt.RegisteredClaims
}

// Codec signs and verifies session cookie values.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec constructs a codec bound to the provided secret.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{secret: []byte(secret), issuer: issuer}
}

// Encode wraps the session token in an HS256 JWT expiring with the session.
func (c *Codec) Encode(token, userID string, expiresAt time.Time) (string, error) {
	if token == "" {
		return "", errors.New("session token required")
	}
	if len(c.secret) == 0 {
		return "", errors.New("session secret missing")
	}
	now := time.Now().UTC()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        token,
		Subject:   userID,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the cookie value and returns the embedded session token.
func (c *Codec) Decode(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidCookie
	}
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidCookie
	}
	return claims.ID, nil
}
