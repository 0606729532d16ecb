package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/middleware"
	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

type dashboardService interface {
	Stats(ctx context.Context, actor *models.Principal) (*models.DashboardStats, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(svc dashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Stats godoc
// @Summary Role-scoped dashboard statistics
// @Tags Dashboard
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.ErrorBody
// @Router /dashboard [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.service.Stats(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processingTimeMs"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, gin.H{"stats": stats}, nil, meta)
}
