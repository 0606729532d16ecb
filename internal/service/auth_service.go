package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/internal/repository"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/session"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindActive(ctx context.Context, id string) (*models.Session, error)
	Extend(ctx context.Context, id string, expiresAt, seenAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID, keepID string) ([]string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type settingsReader interface {
	Bool(ctx context.Context, key string) (bool, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	SessionTTL         time.Duration
	SessionMaxLifetime time.Duration
	SessionCacheTTL    time.Duration
	AdminCode          string
	SupervisorCode     string
	BcryptCost         int
}

// AuthService provides registration, login and the server-side session lifecycle.
type AuthService struct {
	users     authUserRepository
	sessions  sessionRepository
	cache     sessionCache
	settings  settingsReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService constructs an AuthService instance. cache, settings and metrics are optional.
func NewAuthService(users authUserRepository, sessions sessionRepository, cache sessionCache, settings settingsReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	if config.SessionMaxLifetime < config.SessionTTL {
		config.SessionMaxLifetime = config.SessionTTL
	}
	if config.SessionCacheTTL <= 0 {
		config.SessionCacheTTL = 5 * time.Minute
	}
	if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		cache:     cache,
		settings:  settings,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	req.Email = normaliseEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid registration payload")
	}

	if err := s.checkRegistrationAllowed(ctx, req.Role, req.RegistrationCode); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to check email uniqueness")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		FullName:     req.FullName,
		Email:        req.Email,
		IndexNumber:  strings.TrimSpace(req.IndexNumber),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: string(hash),
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, internalError(err, "failed to create user")
	}

	token, sess, err := s.openSession(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration(user.Role)
	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionRegister,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  mustJSON(map[string]string{"user_type": string(user.Role), "email": user.Email}),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.AuthResult{User: user, Token: token, ExpiresAt: sess.ExpiresAt, RedirectTo: user.Role.DashboardPath()}, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong passwords
// yield the same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	req.Email = normaliseEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.burnCompare(req.Password)
			s.metrics.RecordLogin(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, internalError(err, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	token, sess, err := s.openSession(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.metrics.RecordLogin(true)
	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"success"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.AuthResult{User: user, Token: token, ExpiresAt: sess.ExpiresAt, RedirectTo: user.Role.DashboardPath()}, nil
}

// CurrentUser loads the profile behind an authenticated principal.
func (s *AuthService) CurrentUser(ctx context.Context, principal *models.Principal) (*models.User, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, internalError(err, "failed to load user")
	}
	return user, nil
}

// Logout destroys the session behind token. Unknown or already removed sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, token string, meta models.LoginRequest) error {
	if token == "" {
		return nil
	}
	id := session.HashToken(token)

	var userID *string
	if existing, err := s.sessions.FindActive(ctx, id); err == nil {
		userID = &existing.UserID
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete session")
	}
	s.dropCached(ctx, id)

	if userID != nil {
		s.audit(ctx, &models.AuditLog{
			UserID:     userID,
			Action:     models.AuditActionLogout,
			Resource:   "auth",
			ResourceID: userID,
			NewValues:  []byte(`{"status":"logout"}`),
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}
	return nil
}

// ResolveSession maps a session token to its principal, sliding the expiry forward once
// less than half of the TTL remains. The absolute lifetime cap is never exceeded.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	id := session.HashToken(token)
	now := s.now()

	sess, err := s.loadSession(ctx, id, now)
	if err != nil {
		return nil, err
	}

	principal := &models.Principal{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Role:      sess.Role,
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
	}

	if sess.ExpiresAt.Sub(now) >= s.config.SessionTTL/2 {
		return principal, nil
	}

	extended := now.Add(s.config.SessionTTL)
	if limit := sess.CreatedAt.Add(s.config.SessionMaxLifetime); extended.After(limit) {
		extended = limit
	}
	if !extended.After(sess.ExpiresAt) {
		return principal, nil
	}

	if err := s.sessions.Extend(ctx, sess.ID, extended, now); err != nil {
		s.logger.Warn("failed to extend session", zap.String("user_id", sess.UserID), zap.Error(err))
		return principal, nil
	}
	sess.ExpiresAt = extended
	sess.LastSeenAt = now
	s.cacheSession(ctx, sess, now)

	principal.ExpiresAt = extended
	principal.Refreshed = true
	return principal, nil
}

// ChangePassword verifies the current password, stores the new hash and signs out
// every other session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, principal *models.Principal, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid change password payload")
	}

	user, err := s.CurrentUser(ctx, principal)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return internalError(err, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(newHash), s.now()); err != nil {
		return internalError(err, "failed to update password")
	}

	if err := s.RevokeSessions(ctx, user.ID, principal.SessionID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionPasswordChange,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"changed"}`),
	})
	return nil
}

// RevokeSessions deletes every session of the user except keepID and evicts them from cache.
func (s *AuthService) RevokeSessions(ctx context.Context, userID, keepID string) error {
	ids, err := s.sessions.DeleteByUser(ctx, userID, keepID)
	if err != nil {
		return internalError(err, "failed to revoke sessions")
	}
	s.dropCached(ctx, ids...)
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSessionsPurged(n)
	return n, nil
}

func (s *AuthService) checkRegistrationAllowed(ctx context.Context, role models.UserRole, code string) error {
	switch role {
	case models.RoleAdmin:
		if !codeMatches(s.config.AdminCode, code) {
			return appErrors.Clone(appErrors.ErrForbidden, "invalid registration code")
		}
	case models.RoleSupervisor:
		if !codeMatches(s.config.SupervisorCode, code) {
			return appErrors.Clone(appErrors.ErrForbidden, "invalid registration code")
		}
	default:
		if s.settings == nil {
			return nil
		}
		open, err := s.settings.Bool(ctx, SettingRegistrationOpen)
		if err != nil {
			s.logger.Warn("failed to read registration setting", zap.Error(err))
			return nil
		}
		if !open {
			return appErrors.Clone(appErrors.ErrForbidden, "registration is closed")
		}
	}
	return nil
}

// codeMatches compares in constant time. An unset secret never matches.
func codeMatches(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	token, err := session.NewToken()
	if err != nil {
		return "", nil, internalError(err, "failed to create session")
	}
	now := s.now()
	sess := &models.Session{
		ID:         session.HashToken(token),
		UserID:     user.ID,
		Role:       user.Role,
		ExpiresAt:  now.Add(s.config.SessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
		UserAgent:  userAgent,
		IPAddress:  ip,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", nil, internalError(err, "failed to persist session")
	}
	s.cacheSession(ctx, sess, now)
	return token, sess, nil
}

func (s *AuthService) loadSession(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	if s.cache != nil {
		var cached models.Session
		hit, err := s.cache.Get(ctx, sessionCacheKey(id), &cached)
		if err == nil && hit && !cached.Expired(now) {
			return &cached, nil
		}
	}

	sess, err := s.sessions.FindActive(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired or invalid")
		}
		return nil, internalError(err, "failed to load session")
	}
	s.cacheSession(ctx, sess, now)
	return sess, nil
}

func (s *AuthService) cacheSession(ctx context.Context, sess *models.Session, now time.Time) {
	if s.cache == nil {
		return
	}
	ttl := s.config.SessionCacheTTL
	if remaining := sess.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	_ = s.cache.Set(ctx, sessionCacheKey(sess.ID), sess, ttl)
}

func (s *AuthService) dropCached(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionCacheKey(id)
	}
	_ = s.cache.Delete(ctx, keys...)
}

// burnCompare spends a bcrypt comparison so unknown emails take as long as wrong passwords.
func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.config.BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func (s *AuthService) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func sessionCacheKey(id string) string {
	return "session:" + id
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
