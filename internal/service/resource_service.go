package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/dto"
	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/storage"
)

const dashboardCachePattern = "dashboard:*"

type resourceRepository interface {
	Create(ctx context.Context, res *models.Resource) error
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
	UpdateMetadata(ctx context.Context, res *models.Resource) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
	IncrementViews(ctx context.Context, id string) error
	IncrementDownloads(ctx context.Context, id string) error
	Review(ctx context.Context, review models.ResourceReview, notification *models.Notification) error
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type resourceStorage interface {
	SaveStream(filename string, r io.Reader, limit int64) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type downloadSigner interface {
	Issue(resourceID, path string) (string, time.Time, error)
	Verify(token string) (storage.DownloadGrant, error)
}

type resourceNotifier interface {
	Submit(ctx context.Context, n *models.Notification) error
	Enqueue(n *models.Notification)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type settingsStore interface {
	Bool(ctx context.Context, key string) (bool, error)
	Int(ctx context.Context, key string) (int64, error)
	String(ctx context.Context, key string) (string, error)
}

// ResourceUpload carries an uploaded file stream and its client-supplied metadata.
type ResourceUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.ReadSeeker
}

// ResourceDownload is either an open stored file or a redirect to an external URL.
type ResourceDownload struct {
	File        *os.File
	Filename    string
	MimeType    string
	SizeBytes   int64
	RedirectURL string
}

// ResourceServiceConfig holds upload limits and link settings.
type ResourceServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// ResourceService implements the resource catalogue and its review workflow.
type ResourceService struct {
	repo      resourceRepository
	users     userLookup
	storage   resourceStorage
	signer    downloadSigner
	notifier  resourceNotifier
	cache     cacheInvalidator
	settings  settingsStore
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ResourceServiceConfig
	now       func() time.Time
}

// ResourceServiceDeps groups the collaborators of ResourceService. Only Repo is required.
type ResourceServiceDeps struct {
	Repo      resourceRepository
	Users     userLookup
	Storage   resourceStorage
	Signer    downloadSigner
	Notifier  resourceNotifier
	Cache     cacheInvalidator
	Settings  settingsStore
	Audit     auditLogger
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewResourceService constructs the service with defaults.
func NewResourceService(deps ResourceServiceDeps, cfg ResourceServiceConfig) *ResourceService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 25 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	return &ResourceService{
		repo:      deps.Repo,
		users:     deps.Users,
		storage:   deps.Storage,
		signer:    deps.Signer,
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		settings:  deps.Settings,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new pending resource owned by the caller, either from an uploaded file
// or from an external file URL.
func (s *ResourceService) Create(ctx context.Context, actor *models.Principal, req dto.CreateResourceRequest, upload *ResourceUpload) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Department = strings.TrimSpace(req.Department)
	req.FileURL = strings.TrimSpace(req.FileURL)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resource payload")
	}
	if upload == nil && req.FileURL == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file or fileUrl is required")
	}

	supervisorID, err := s.resolveSupervisor(ctx, req.SupervisorID)
	if err != nil {
		return nil, err
	}

	res := &models.Resource{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Description:  strings.TrimSpace(req.Description),
		Type:         req.Type,
		Department:   req.Department,
		OwnerID:      actor.UserID,
		SupervisorID: supervisorID,
		Status:       models.ResourceStatusPending,
		CreatedAt:    s.now(),
	}

	if upload != nil {
		if err := s.storeUpload(ctx, res, upload); err != nil {
			return nil, err
		}
	} else {
		res.FileURL = req.FileURL
	}

	if err := s.repo.Create(ctx, res); err != nil {
		if res.FilePath != "" && s.storage != nil {
			_ = s.storage.Delete(res.FilePath)
		}
		return nil, internalError(err, "failed to create resource")
	}

	s.metrics.RecordUpload(res.Type)
	s.emitAudit(ctx, actor, models.AuditActionResourceCreate, res.ID, nil, map[string]string{"title": res.Title, "type": string(res.Type)})
	s.invalidateDashboards(ctx)

	if res.SupervisorID != nil && s.notifier != nil {
		n := &models.Notification{
			UserID:     *res.SupervisorID,
			ResourceID: &res.ID,
			Kind:       models.NotificationResourceSubmitted,
			Title:      "New resource awaiting review",
			Message:    fmt.Sprintf("%q was submitted for your review.", res.Title),
		}
		if err := s.notifier.Submit(ctx, n); err != nil {
			s.logger.Warn("failed to notify supervisor", zap.String("resource_id", res.ID), zap.Error(err))
		}
	}
	return res, nil
}

// List returns the resources visible to the caller that match every filter.
func (s *ResourceService) List(ctx context.Context, actor *models.Principal, filter models.ResourceFilter) ([]models.Resource, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid type filter")
	}
	filter.ViewerID = actor.UserID
	filter.ViewerRole = actor.Role

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list resources")
	}
	if items == nil {
		items = []models.Resource{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one resource and counts the view.
func (s *ResourceService) Get(ctx context.Context, actor *models.Principal, id string) (*models.Resource, error) {
	res, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementViews(ctx, res.ID); err != nil {
		s.logger.Warn("failed to increment views", zap.String("resource_id", res.ID), zap.Error(err))
	} else {
		res.Views++
	}
	return res, nil
}

// Update edits metadata. Owners may edit only while the resource is pending; admins always.
func (s *ResourceService) Update(ctx context.Context, actor *models.Principal, id string, req dto.UpdateResourceRequest) (*models.Resource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resource payload")
	}
	res, err := s.loadEditable(ctx, actor, id, "edited")
	if err != nil {
		return nil, err
	}

	before := map[string]string{"title": res.Title, "type": string(res.Type), "department": res.Department}
	if req.Title != nil {
		res.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		res.Description = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		res.Type = *req.Type
	}
	if req.Department != nil {
		res.Department = strings.TrimSpace(*req.Department)
	}
	if req.SupervisorID != nil {
		supervisorID, err := s.resolveSupervisor(ctx, req.SupervisorID)
		if err != nil {
			return nil, err
		}
		res.SupervisorID = supervisorID
	}

	if err := s.repo.UpdateMetadata(ctx, res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, internalError(err, "failed to update resource")
	}

	s.emitAudit(ctx, actor, models.AuditActionResourceUpdate, res.ID, before, map[string]string{"title": res.Title, "type": string(res.Type), "department": res.Department})
	s.invalidateDashboards(ctx)
	return res, nil
}

// Delete soft-deletes a resource. Owners may delete only while pending; admins always.
func (s *ResourceService) Delete(ctx context.Context, actor *models.Principal, id string) error {
	res, err := s.loadEditable(ctx, actor, id, "deleted")
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, res.ID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return internalError(err, "failed to delete resource")
	}
	s.emitAudit(ctx, actor, models.AuditActionResourceDelete, res.ID, map[string]string{"title": res.Title}, nil)
	s.invalidateDashboards(ctx)
	return nil
}

// Review moves a pending resource to approved or rejected. The status change and the
// owner's notification are committed together; delivery happens asynchronously.
func (s *ResourceService) Review(ctx context.Context, actor *models.Principal, id string, req dto.ReviewResourceRequest) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleSupervisor, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only supervisors and admins can review resources")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid review payload")
	}

	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleSupervisor && (res.SupervisorID == nil || *res.SupervisorID != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "resource is not assigned to you")
	}
	if !res.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "resource already reviewed")
	}

	reason := reviewReason(req)
	if req.Status == models.ResourceStatusApproved && (reason == nil || strings.TrimSpace(*reason) == "") && s.approvalReasonRequired(ctx) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approvalReason is required")
	}

	review := models.ResourceReview{
		ResourceID: res.ID,
		Status:     req.Status,
		Reason:     reason,
		ReviewerID: actor.UserID,
		ReviewedAt: s.now(),
	}
	notification := reviewNotification(res, req.Status, reason)

	if err := s.repo.Review(ctx, review, notification); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.load(ctx, id); lookupErr != nil {
				return nil, lookupErr
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "resource already reviewed")
		}
		return nil, internalError(err, "failed to review resource")
	}

	if s.notifier != nil {
		s.notifier.Enqueue(notification)
	}

	previous := res.Status
	res.Status = req.Status
	res.ReviewedBy = &actor.UserID
	res.ReviewedAt = &review.ReviewedAt
	res.UpdatedAt = review.ReviewedAt
	switch req.Status {
	case models.ResourceStatusApproved:
		res.ApprovalReason = reason
	case models.ResourceStatusRejected:
		if reason == nil {
			empty := ""
			reason = &empty
		}
		res.RejectionReason = reason
	}

	s.metrics.RecordReview(req.Status)
	s.emitAudit(ctx, actor, models.AuditActionResourceReview, res.ID,
		map[string]string{"status": string(previous)},
		map[string]string{"status": string(res.Status), "reason": deref(reason)})
	s.invalidateDashboards(ctx)
	return res, nil
}

// Download counts the download and returns the stored file, or the external URL to redirect to.
func (s *ResourceService) Download(ctx context.Context, actor *models.Principal, id string) (*ResourceDownload, error) {
	res, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.openForDownload(ctx, res)
}

// Link issues a time-limited public download URL for a stored file.
func (s *ResourceService) Link(ctx context.Context, actor *models.Principal, id string) (*dto.ResourceLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	res, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if res.FilePath == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource has no stored file")
	}
	token, expiresAt, err := s.signer.Issue(res.ID, res.FilePath)
	if err != nil {
		return nil, internalError(err, "failed to generate download token")
	}
	url := fmt.Sprintf("%s/files/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	return &dto.ResourceLinkResponse{URL: url, ExpiresAt: expiresAt}, nil
}

// OpenSigned serves a download authorised by a signed token instead of a session.
func (s *ResourceService) OpenSigned(ctx context.Context, token string) (*ResourceDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	grant, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrLinkExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	res, err := s.load(ctx, grant.ResourceID)
	if err != nil {
		return nil, err
	}
	if res.FilePath != grant.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "link no longer valid")
	}
	return s.openForDownload(ctx, res)
}

func (s *ResourceService) openForDownload(ctx context.Context, res *models.Resource) (*ResourceDownload, error) {
	if res.FilePath == "" && res.FileURL == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "resource has no file")
	}

	var download *ResourceDownload
	if res.FilePath == "" {
		download = &ResourceDownload{RedirectURL: res.FileURL}
	} else {
		if s.storage == nil {
			return nil, appErrors.Clone(appErrors.ErrInternal, "file storage unavailable")
		}
		file, err := s.storage.Open(res.FilePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "stored file missing")
			}
			return nil, internalError(err, "failed to open resource file")
		}
		info, err := file.Stat()
		if err != nil {
			file.Close() //nolint:errcheck
			return nil, internalError(err, "failed to read resource file")
		}
		name := res.FileName
		if name == "" {
			name = filepath.Base(res.FilePath)
		}
		download = &ResourceDownload{File: file, Filename: name, MimeType: res.MimeType, SizeBytes: info.Size()}
	}

	if err := s.repo.IncrementDownloads(ctx, res.ID); err != nil {
		s.logger.Warn("failed to increment downloads", zap.String("resource_id", res.ID), zap.Error(err))
	}
	s.metrics.RecordDownload()
	return download, nil
}

func (s *ResourceService) load(ctx context.Context, id string) (*models.Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, internalError(err, "failed to load resource")
	}
	return res, nil
}

// loadVisible hides resources outside the caller's scope behind a 404.
func (s *ResourceService) loadVisible(ctx context.Context, actor *models.Principal, id string) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, res) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	}
	return res, nil
}

func (s *ResourceService) loadEditable(ctx context.Context, actor *models.Principal, id, verb string) (*models.Resource, error) {
	res, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin {
		return res, nil
	}
	if res.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin can modify this resource")
	}
	if res.Status != models.ResourceStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only pending resources can be %s", verb))
	}
	return res, nil
}

func canView(actor *models.Principal, res *models.Resource) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSupervisor:
		return res.OwnerID == actor.UserID || (res.SupervisorID != nil && *res.SupervisorID == actor.UserID)
	case models.RoleStudent:
		return res.OwnerID == actor.UserID || res.Status == models.ResourceStatusApproved
	}
	return false
}

func (s *ResourceService) resolveSupervisor(ctx context.Context, raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*raw)
	if s.users == nil {
		return &id, nil
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "supervisorId does not reference a user")
		}
		return nil, internalError(err, "failed to load supervisor")
	}
	if user.Role != models.RoleSupervisor {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supervisorId must reference a supervisor")
	}
	return &id, nil
}

func (s *ResourceService) storeUpload(ctx context.Context, res *models.Resource, upload *ResourceUpload) error {
	if s.storage == nil {
		return appErrors.Clone(appErrors.ErrInternal, "file storage unavailable")
	}
	if upload.Content == nil {
		return appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	limit := s.maxFileSize(ctx)
	if upload.Size > limit {
		return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", limit))
	}

	mimeType, err := uploadMime(upload)
	if err != nil {
		return err
	}
	if !s.mimeAllowed(ctx, mimeType) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mimeType))
	}

	filename := storedFilename(res.ID, upload.Filename, mimeType)
	written, err := s.storage.SaveStream(filename, upload.Content, limit)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", limit))
		}
		return internalError(err, "failed to store file")
	}
	if written == 0 {
		_ = s.storage.Delete(filename)
		return appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	res.FileName = filepath.Base(upload.Filename)
	res.FilePath = filename
	res.MimeType = mimeType
	res.SizeBytes = written
	return nil
}

func (s *ResourceService) maxFileSize(ctx context.Context) int64 {
	if s.settings != nil {
		if mb, err := s.settings.Int(ctx, SettingUploadMaxSizeMB); err == nil && mb > 0 {
			return mb * 1024 * 1024
		}
	}
	return s.cfg.MaxFileSize
}

func (s *ResourceService) mimeAllowed(ctx context.Context, mimeType string) bool {
	allowed := s.cfg.AllowedMIMEs
	if s.settings != nil {
		if raw, err := s.settings.String(ctx, SettingUploadAllowedTypes); err == nil && strings.TrimSpace(raw) != "" {
			allowed = strings.Split(raw, ",")
		}
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), mimeType) {
			return true
		}
	}
	return false
}

func (s *ResourceService) approvalReasonRequired(ctx context.Context) bool {
	if s.settings == nil {
		return false
	}
	required, err := s.settings.Bool(ctx, SettingRequireApprovalReason)
	if err != nil {
		s.logger.Warn("failed to read approval reason setting", zap.Error(err))
		return false
	}
	return required
}

func (s *ResourceService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, dashboardCachePattern)
}

func (s *ResourceService) emitAudit(ctx context.Context, actor *models.Principal, action, resourceID string, oldValues, newValues map[string]string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   "resource",
		ResourceID: &resourceID,
		CreatedAt:  s.now(),
	}
	if oldValues != nil {
		entry.OldValues = mustJSON(oldValues)
	}
	if newValues != nil {
		entry.NewValues = mustJSON(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record resource audit", zap.String("action", action), zap.Error(err))
	}
}

// reviewReason picks the reason matching the target status, falling back to the generic key.
func reviewReason(req dto.ReviewResourceRequest) *string {
	switch req.Status {
	case models.ResourceStatusApproved:
		if req.ApprovalReason != nil {
			return req.ApprovalReason
		}
	case models.ResourceStatusRejected:
		if req.RejectionReason != nil {
			return req.RejectionReason
		}
	}
	return req.Reason
}

func reviewNotification(res *models.Resource, status models.ResourceStatus, reason *string) *models.Notification {
	n := &models.Notification{
		ID:         uuid.NewString(),
		UserID:     res.OwnerID,
		ResourceID: &res.ID,
	}
	switch status {
	case models.ResourceStatusApproved:
		n.Kind = models.NotificationResourceApproved
		n.Title = "Resource approved"
		n.Message = fmt.Sprintf("%q has been approved.", res.Title)
	default:
		n.Kind = models.NotificationResourceRejected
		n.Title = "Resource rejected"
		why := "No reason provided"
		if reason != nil && strings.TrimSpace(*reason) != "" {
			why = *reason
		}
		n.Message = fmt.Sprintf("%q was rejected: %s", res.Title, why)
	}
	return n
}

// sniffAliases lists declared types whose content sniffs as a more generic type.
var sniffAliases = map[string][]string{
	"application/zip": {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/x-zip-compressed",
	},
	"application/octet-stream": {
		"application/msword",
		"application/vnd.ms-powerpoint",
		"application/vnd.ms-excel",
	},
}

// uploadMime sniffs the first 512 bytes of the upload. A declared type is kept only when
// the content agrees with it; otherwise the upload is rejected.
func uploadMime(upload *ResourceUpload) (string, error) {
	header := make([]byte, 512)
	n, err := io.ReadFull(upload.Content, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", internalError(err, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", internalError(err, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(header[:n]))

	declared := ""
	if upload.ContentType != "" {
		if mediaType, _, err := mime.ParseMediaType(upload.ContentType); err == nil {
			declared = strings.ToLower(mediaType)
		}
	}
	if declared == "" || declared == "application/octet-stream" || declared == sniffed {
		return sniffed, nil
	}
	if sniffed == "text/plain" && strings.HasPrefix(declared, "text/") {
		return declared, nil
	}
	for _, alias := range sniffAliases[sniffed] {
		if alias == declared {
			return declared, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file content (%s) does not match declared type %s", sniffed, declared))
}

func storedFilename(id, original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	if ext == "" {
		ext = ".bin"
	}
	return id + ext
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
