package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionCounter interface {
	CountActiveByUsers(ctx context.Context, userIDs []string) (map[string]int, error)
}

type sessionRevoker interface {
	RevokeSessions(ctx context.Context, userID, keepID string) error
}

// UserService handles admin user management.
type UserService struct {
	repo      userRepository
	sessions  sessionCounter
	revoker   sessionRevoker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions sessionCounter, revoker sessionRevoker, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, sessions: sessions, revoker: revoker, validator: validate, logger: logger}
}

// List returns paginated users annotated with their active session counts.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserSummary, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid role filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list users")
	}

	counts := map[string]int{}
	if s.sessions != nil && len(users) > 0 {
		ids := make([]string, len(users))
		for i := range users {
			ids[i] = users[i].ID
		}
		if counts, err = s.sessions.CountActiveByUsers(ctx, ids); err != nil {
			s.logger.Warn("failed to count active sessions", zap.Error(err))
			counts = map[string]int{}
		}
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, models.UserSummary{
			UserInfo:       models.NewUserInfo(&users[i]),
			LastLogin:      users[i].LastLogin,
			ActiveSessions: counts[users[i].ID],
		})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return summaries, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, internalError(err, "failed to load user")
	}
	return user, nil
}

// UpdateRole moves a user to another role and signs out all of their sessions so no
// session keeps carrying the previous role.
func (s *UserService) UpdateRole(ctx context.Context, id string, req models.UpdateRoleRequest, actor *models.Principal) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid role payload")
	}
	if actor != nil && actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admins cannot change their own role")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == req.Role {
		return user, nil
	}

	previous := user.Role
	now := time.Now().UTC()
	if err := s.repo.UpdateRole(ctx, id, req.Role, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, internalError(err, "failed to update role")
	}
	user.Role = req.Role
	user.UpdatedAt = now

	if s.revoker != nil {
		if err := s.revoker.RevokeSessions(ctx, id, ""); err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionRoleChange,
		Resource:   "user",
		ResourceID: &user.ID,
		OldValues:  mustJSON(map[string]string{"user_type": string(previous)}),
		NewValues:  mustJSON(map[string]string{"user_type": string(req.Role)}),
	}); err != nil {
		s.logger.Warn("failed to record role change audit log", zap.Error(err))
	}

	return user, nil
}
