package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/logger"
	"github.com/noah-isme/docrepo-api/pkg/response"
	"github.com/noah-isme/docrepo-api/pkg/session"
)

// ContextSessionKey is the gin context key storing the authenticated principal.
const ContextSessionKey = "currentPrincipal"

// SessionResolver maps a raw session token to its principal.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.Principal, error)
}

// SessionCookie reads and writes the signed session cookie.
type SessionCookie struct {
	Name   string
	Domain string
	Secure bool
	Codec  *session.Codec
}

// Token extracts the opaque session token from the request cookie.
func (s *SessionCookie) Token(c *gin.Context) (string, error) {
	raw, err := c.Cookie(s.Name)
	if err != nil || raw == "" {
		return "", session.ErrInvalidCookie
	}
	return s.Codec.Decode(raw)
}

// Write issues the cookie for a session expiring at expiresAt.
func (s *SessionCookie) Write(c *gin.Context, token, userID string, expiresAt time.Time) error {
	value, err := s.Codec.Encode(token, userID, expiresAt)
	if err != nil {
		return err
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	s.set(c, value, maxAge)
	return nil
}

// Clear expires the cookie on the client.
func (s *SessionCookie) Clear(c *gin.Context) {
	s.set(c, "", -1)
}

func (s *SessionCookie) set(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.Name, value, maxAge, "/", s.Domain, s.Secure, true)
}

// Authenticated rejects requests without a valid session and attaches the principal.
// Sessions that were slid forward get a fresh cookie.
func Authenticated(resolver SessionResolver, cookie *SessionCookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := cookie.Token(c)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required"))
			return
		}

		principal, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			cookie.Clear(c)
			response.Abort(c, err)
			return
		}

		if principal.Refreshed {
			_ = cookie.Write(c, principal.Token, principal.UserID, principal.ExpiresAt)
		}

		c.Set(ContextSessionKey, principal)
		c.Set(logger.UserIDKey, principal.UserID)
		c.Next()
	}
}

// PrincipalFromContext returns the principal attached by Authenticated.
func PrincipalFromContext(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	principal, ok := value.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
