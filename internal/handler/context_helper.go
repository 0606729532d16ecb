package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/middleware"
	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.PrincipalFromContext(c)
}

// requirePrincipal writes a 401 and returns nil when the route ran without a session.
func requirePrincipal(c *gin.Context) *models.Principal {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return principal
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
