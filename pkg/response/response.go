package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

// ErrorBody is the failure contract shared by every endpoint.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// JSON sends a success response. Payload keys are flattened next to the success flag so
// clients read e.g. {"success":true,"user":{...}}.
func JSON(c *gin.Context, status int, payload gin.H, pagination *models.Pagination, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	if pagination != nil {
		body["pagination"] = pagination
	}
	if len(meta) > 0 && meta[0] != nil {
		body["meta"] = meta[0]
	}
	c.JSON(status, body)
}

// OK responds with HTTP 200.
func OK(c *gin.Context, payload gin.H) {
	JSON(c, http.StatusOK, payload, nil)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, payload gin.H) {
	JSON(c, http.StatusCreated, payload, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, ErrorBody{Success: false, Message: appErr.Message, Error: appErr.Code})
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
