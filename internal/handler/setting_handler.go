package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

type settingService interface {
	List(ctx context.Context) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Update(ctx context.Context, key, value string, actor *models.Principal) (*models.Setting, error)
	BulkUpdate(ctx context.Context, req models.BulkSettingsRequest, actor *models.Principal) ([]models.Setting, error)
}

// SettingHandler exposes admin-managed runtime settings.
type SettingHandler struct {
	service settingService
}

// NewSettingHandler builds a new handler.
func NewSettingHandler(svc settingService) *SettingHandler {
	return &SettingHandler{service: svc}
}

type updateSettingRequest struct {
	Value string `json:"value"`
}

// List godoc
// @Summary List settings
// @Tags Settings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.ErrorBody
// @Router /settings [get]
func (h *SettingHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"settings": items})
}

// Get godoc
// @Summary Get setting by key
// @Tags Settings
// @Produce json
// @Param key path string true "Setting key"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.ErrorBody
// @Router /settings/{key} [get]
func (h *SettingHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"setting": item})
}

// Update godoc
// @Summary Update a setting
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param payload body updateSettingRequest true "New value"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Router /settings/{key} [put]
func (h *SettingHandler) Update(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid setting payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("key"), req.Value, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Setting updated", "setting": item}, nil)
}

// BulkUpdate godoc
// @Summary Update several settings at once
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body models.BulkSettingsRequest true "Settings"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Router /settings [put]
func (h *SettingHandler) BulkUpdate(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var req models.BulkSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid settings payload"))
		return
	}
	items, err := h.service.BulkUpdate(c.Request.Context(), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Settings updated", "settings": items}, nil)
}
