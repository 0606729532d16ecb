package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/dto"
	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/internal/service"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

type resourceService interface {
	Create(ctx context.Context, actor *models.Principal, req dto.CreateResourceRequest, upload *service.ResourceUpload) (*models.Resource, error)
	List(ctx context.Context, actor *models.Principal, filter models.ResourceFilter) ([]models.Resource, *models.Pagination, error)
	Get(ctx context.Context, actor *models.Principal, id string) (*models.Resource, error)
	Update(ctx context.Context, actor *models.Principal, id string, req dto.UpdateResourceRequest) (*models.Resource, error)
	Delete(ctx context.Context, actor *models.Principal, id string) error
	Review(ctx context.Context, actor *models.Principal, id string, req dto.ReviewResourceRequest) (*models.Resource, error)
	Download(ctx context.Context, actor *models.Principal, id string) (*service.ResourceDownload, error)
	Link(ctx context.Context, actor *models.Principal, id string) (*dto.ResourceLinkResponse, error)
	OpenSigned(ctx context.Context, token string) (*service.ResourceDownload, error)
}

type exportService interface {
	Resources(ctx context.Context, filter models.ResourceFilter, format string) (*service.ExportResult, error)
}

// ResourceHandler exposes the resource catalogue and review workflow.
type ResourceHandler struct {
	service resourceService
	export  exportService
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(svc resourceService, export exportService) *ResourceHandler {
	return &ResourceHandler{service: svc, export: export}
}

// Create godoc
// @Summary Upload a resource
// @Description Multipart upload with a `file` part, or JSON metadata with an external fileUrl
// @Tags Resources
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param file formData file false "Resource file"
// @Param title formData string true "Title"
// @Param type formData string true "past-exam, mini-project, final-project or thesis"
// @Param department formData string true "Department"
// @Param supervisorId formData string false "Assigned supervisor"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 413 {object} response.ErrorBody
// @Router /resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}

	var (
		req    dto.CreateResourceRequest
		upload *service.ResourceUpload
	)
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, bindError(err, "invalid resource payload"))
			return
		}
		if fileHeader, err := c.FormFile("file"); err == nil {
			src, err := fileHeader.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
				return
			}
			defer src.Close()
			upload = &service.ResourceUpload{
				Filename:    fileHeader.Filename,
				Size:        fileHeader.Size,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Content:     src,
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid resource payload"))
		return
	}

	res, err := h.service.Create(c.Request.Context(), principal, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message": "Resource submitted for review", "resource": res})
}

// List godoc
// @Summary List resources
// @Description Role-scoped listing, newest first
// @Tags Resources
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param supervisorId query string false "Supervisor"
// @Param department query string false "Department"
// @Param type query string false "Resource type"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var query dto.ResourceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), principal, filterFromQuery(query))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resources": items}, pagination)
}

// Get godoc
// @Summary Get resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.ErrorBody
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	res, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"resource": res})
}

// Update godoc
// @Summary Edit resource metadata
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.UpdateResourceRequest true "Changes"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var req dto.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid resource payload"))
		return
	}
	res, err := h.service.Update(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"resource": res})
}

// Delete godoc
// @Summary Delete resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.ErrorBody
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Resource deleted"})
}

// UpdateStatus godoc
// @Summary Approve or reject a resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.ReviewResourceRequest true "Review"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Router /resources/{id}/status [patch]
func (h *ResourceHandler) UpdateStatus(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var req dto.ReviewResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid review payload"))
		return
	}
	res, err := h.service.Review(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": fmt.Sprintf("Resource %s", res.Status), "resource": res})
}

// Download godoc
// @Summary Download resource file
// @Tags Resources
// @Produce octet-stream
// @Param id path string true "Resource ID"
// @Success 200 {file} file
// @Success 302
// @Router /resources/{id}/download [get]
func (h *ResourceHandler) Download(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	result, err := h.service.Download(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, result)
}

// Link godoc
// @Summary Create a temporary download link
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} map[string]interface{}
// @Router /resources/{id}/link [get]
func (h *ResourceHandler) Link(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	link, err := h.service.Link(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"link": link})
}

// SignedFile godoc
// @Summary Download through a signed link
// @Tags Resources
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.ErrorBody
// @Router /files/{token} [get]
func (h *ResourceHandler) SignedFile(c *gin.Context) {
	result, err := h.service.OpenSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, result)
}

// Export godoc
// @Summary Export the resource catalogue
// @Tags Resources
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /resources/export [get]
func (h *ResourceHandler) Export(c *gin.Context) {
	if h.export == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export not configured"))
		return
	}
	var query dto.ResourceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query"))
		return
	}
	result, err := h.export.Resources(c.Request.Context(), filterFromQuery(query), strings.ToLower(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func serveDownload(c *gin.Context, result *service.ResourceDownload) {
	if result.RedirectURL != "" {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}
	defer result.File.Close() //nolint:errcheck
	mimeType := result.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, mimeType, io.Reader(result.File), nil)
}

func filterFromQuery(q dto.ResourceListQuery) models.ResourceFilter {
	return models.ResourceFilter{
		Status:       models.ResourceStatus(strings.TrimSpace(q.Status)),
		SupervisorID: strings.TrimSpace(q.SupervisorID),
		Department:   strings.TrimSpace(q.Department),
		Type:         models.ResourceType(strings.TrimSpace(q.Type)),
		Search:       strings.TrimSpace(q.Search),
		Page:         q.Page,
		PageSize:     q.Limit,
	}
}

func isMultipart(c *gin.Context) bool {
	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
