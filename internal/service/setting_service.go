package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

// Known setting keys.
const (
	SettingSiteName              = "site.name"
	SettingUploadMaxSizeMB       = "uploads.max_size_mb"
	SettingUploadAllowedTypes    = "uploads.allowed_types"
	SettingRegistrationOpen      = "registration.open"
	SettingEmailNotifications    = "notifications.email_enabled"
	SettingRequireApprovalReason = "review.require_approval_reason"
)

type settingRepository interface {
	List(ctx context.Context) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	BulkUpsert(ctx context.Context, settings []models.Setting) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type settingDefinition struct {
	Type        models.SettingType
	Description string
	Default     string
}

var settingKeys = []string{
	SettingSiteName,
	SettingUploadMaxSizeMB,
	SettingUploadAllowedTypes,
	SettingRegistrationOpen,
	SettingEmailNotifications,
	SettingRequireApprovalReason,
}

// SettingServiceConfig seeds defaults derived from process configuration.
type SettingServiceConfig struct {
	MaxUploadMB  int64
	AllowedMIMEs []string
}

// SettingService manages the persisted admin settings.
type SettingService struct {
	repo        settingRepository
	audit       auditLogger
	validator   *validator.Validate
	logger      *zap.Logger
	definitions map[string]settingDefinition
}

// NewSettingService constructs a SettingService.
func NewSettingService(repo settingRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg SettingServiceConfig) *SettingService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 25
	}
	definitions := map[string]settingDefinition{
		SettingSiteName: {
			Type:        models.SettingTypeString,
			Description: "Name shown in the application header",
			Default:     "University Document Repository",
		},
		SettingUploadMaxSizeMB: {
			Type:        models.SettingTypeInteger,
			Description: "Largest accepted upload in megabytes",
			Default:     strconv.FormatInt(maxMB, 10),
		},
		SettingUploadAllowedTypes: {
			Type:        models.SettingTypeString,
			Description: "Comma separated MIME types accepted for upload",
			Default:     strings.Join(cfg.AllowedMIMEs, ","),
		},
		SettingRegistrationOpen: {
			Type:        models.SettingTypeBoolean,
			Description: "Allow students to self-register",
			Default:     "true",
		},
		SettingEmailNotifications: {
			Type:        models.SettingTypeBoolean,
			Description: "Send email copies of notifications",
			Default:     "false",
		},
		SettingRequireApprovalReason: {
			Type:        models.SettingTypeBoolean,
			Description: "Reviewers must justify approvals",
			Default:     "false",
		},
	}
	return &SettingService{repo: repo, audit: audit, validator: validate, logger: logger, definitions: definitions}
}

// List returns every known setting with stored values merged over defaults.
func (s *SettingService) List(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list settings")
	}
	stored := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		stored[row.Key] = row
	}

	items := make([]models.Setting, 0, len(settingKeys))
	for _, key := range settingKeys {
		if row, ok := stored[key]; ok {
			items = append(items, row)
			continue
		}
		items = append(items, s.defaultSetting(key))
	}
	return items, nil
}

// Get returns one setting, falling back to its default.
func (s *SettingService) Get(ctx context.Context, key string) (*models.Setting, error) {
	if _, err := s.definition(key); err != nil {
		return nil, err
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := s.defaultSetting(key)
			return &def, nil
		}
		return nil, internalError(err, "failed to get setting")
	}
	return setting, nil
}

// Update validates and stores a single value.
func (s *SettingService) Update(ctx context.Context, key, value string, actor *models.Principal) (*models.Setting, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	normalised, err := normaliseSettingValue(key, def.Type, value)
	if err != nil {
		return nil, err
	}

	prev, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	setting := &models.Setting{
		Key:         key,
		Value:       normalised,
		Type:        def.Type,
		Description: def.Description,
		UpdatedBy:   actorID(actor),
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, internalError(err, "failed to update setting")
	}

	s.emitAudit(ctx, actor, key, prev.Value, normalised)
	return setting, nil
}

// BulkUpdate validates every item first and then stores them in one transaction.
func (s *SettingService) BulkUpdate(ctx context.Context, req models.BulkSettingsRequest, actor *models.Principal) ([]models.Setting, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid settings payload")
	}

	current, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	previous := make(map[string]string, len(current))
	for _, item := range current {
		previous[item.Key] = item.Value
	}

	toUpsert := make([]models.Setting, 0, len(req.Items))
	for _, item := range req.Items {
		def, err := s.definition(item.Key)
		if err != nil {
			return nil, err
		}
		normalised, err := normaliseSettingValue(item.Key, def.Type, item.Value)
		if err != nil {
			return nil, err
		}
		toUpsert = append(toUpsert, models.Setting{
			Key:         item.Key,
			Value:       normalised,
			Type:        def.Type,
			Description: def.Description,
			UpdatedBy:   actorID(actor),
		})
	}

	if err := s.repo.BulkUpsert(ctx, toUpsert); err != nil {
		return nil, internalError(err, "failed to update settings")
	}

	for _, item := range toUpsert {
		s.emitAudit(ctx, actor, item.Key, previous[item.Key], item.Value)
	}
	return toUpsert, nil
}

// String returns the effective value of a setting.
func (s *SettingService) String(ctx context.Context, key string) (string, error) {
	setting, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Bool returns the effective value of a boolean setting.
func (s *SettingService) Bool(ctx context.Context, key string) (bool, error) {
	value, err := s.String(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

// Int returns the effective value of an integer setting.
func (s *SettingService) Int(ctx context.Context, key string) (int64, error) {
	value, err := s.String(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *SettingService) definition(key string) (settingDefinition, error) {
	def, ok := s.definitions[key]
	if !ok {
		return settingDefinition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown setting %q", key))
	}
	return def, nil
}

func (s *SettingService) defaultSetting(key string) models.Setting {
	def := s.definitions[key]
	return models.Setting{Key: key, Value: def.Default, Type: def.Type, Description: def.Description}
}

func (s *SettingService) emitAudit(ctx context.Context, actor *models.Principal, key, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionSettingsUpdate,
		Resource:   "settings",
		ResourceID: &key,
		OldValues:  mustJSON(map[string]string{"key": key, "value": oldValue}),
		NewValues:  mustJSON(map[string]string{"key": key, "value": newValue}),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record settings audit", zap.String("key", key), zap.Error(err))
	}
}

func normaliseSettingValue(key string, kind models.SettingType, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case models.SettingTypeBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects a boolean value", key))
		}
		return strconv.FormatBool(b), nil
	case models.SettingTypeInteger:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects a positive integer", key))
		}
		return strconv.FormatInt(n, 10), nil
	default:
		if value == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must not be empty", key))
		}
		return value, nil
	}
}

func actorID(actor *models.Principal) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
