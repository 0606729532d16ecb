package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

// RequireRoles enforces role-based access control. The role is read from the session,
// never re-fetched from the users table.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		if principal == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[principal.Role]; ok {
			c.Next()
			return
		}
		response.Abort(c, appErrors.ErrForbidden)
	}
}
