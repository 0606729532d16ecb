package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/session"
)

type mockUserStore struct {
	users     map[string]*models.User
	createErr error
	auditLogs []*models.AuditLog
}

func newMockUserStore(users ...*models.User) *mockUserStore {
	m := &mockUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockUserStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockUserStore) actions() []string {
	out := make([]string, 0, len(m.auditLogs))
	for _, l := range m.auditLogs {
		out = append(out, l.Action)
	}
	return out
}

type mockSessionStore struct {
	sessions map[string]*models.Session
	extended int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *mockSessionStore) Create(ctx context.Context, s *models.Session) error {
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *mockSessionStore) FindActive(ctx context.Context, id string) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Expired(time.Now().UTC()) {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *mockSessionStore) Extend(ctx context.Context, id string, expiresAt, seenAt time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.ExpiresAt = expiresAt
	s.LastSeenAt = seenAt
	m.extended++
	return nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteByUser(ctx context.Context, userID, keepID string) ([]string, error) {
	var removed []string
	for id, s := range m.sessions {
		if s.UserID == userID && id != keepID {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (m *mockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionStore) CountActiveByUsers(ctx context.Context, userIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, s := range m.sessions {
		counts[s.UserID]++
	}
	return counts, nil
}

type mockSettings struct {
	bools   map[string]bool
	ints    map[string]int64
	strings map[string]string
}

func (m *mockSettings) Bool(ctx context.Context, key string) (bool, error) {
	return m.bools[key], nil
}

func (m *mockSettings) Int(ctx context.Context, key string) (int64, error) {
	return m.ints[key], nil
}

func (m *mockSettings) String(ctx context.Context, key string) (string, error) {
	return m.strings[key], nil
}

func newTestAuthService(users *mockUserStore, sessions *mockSessionStore, settings settingsReader) *AuthService {
	return NewAuthService(users, sessions, nil, settings, nil, NewValidator(), zap.NewNop(), AuthConfig{
		SessionTTL:         time.Hour,
		SessionMaxLifetime: 4 * time.Hour,
		AdminCode:          "admin-secret",
		SupervisorCode:     "supervisor-secret",
		BcryptCost:         bcrypt.MinCost,
	})
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func studentRegistration() models.RegisterRequest {
	return models.RegisterRequest{
		FullName:    "Ama K.",
		Email:       "ama@cug.edu.gh",
		IndexNumber: "100123",
		PhoneNumber: "0551234567",
		Password:    "Secret1!",
		Role:        models.RoleStudent,
	}
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	users := newMockUserStore()
	sessions := newMockSessionStore()
	svc := newTestAuthService(users, sessions, nil)

	res, err := svc.Register(context.Background(), studentRegistration())
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/student", res.RedirectTo)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.NotEmpty(t, res.Token)
	assert.Len(t, users.users, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("Secret1!")))

	stored, ok := sessions.sessions[session.HashToken(res.Token)]
	require.True(t, ok, "session must be keyed by token hash")
	assert.Equal(t, res.User.ID, stored.UserID)
	assert.Contains(t, users.actions(), models.AuditActionRegister)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", Role: models.RoleStudent})
	svc := newTestAuthService(users, newMockSessionStore(), nil)

	req := studentRegistration()
	req.Email = "  AMA@cug.edu.gh "
	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Len(t, users.users, 1)
}

func TestAuthServiceRegisterElevatedRoleRequiresCode(t *testing.T) {
	cases := []struct {
		name string
		role models.UserRole
		code string
	}{
		{name: "admin missing code", role: models.RoleAdmin},
		{name: "admin wrong code", role: models.RoleAdmin, code: "supervisor-secret"},
		{name: "supervisor wrong code", role: models.RoleSupervisor, code: "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := newMockUserStore()
			svc := newTestAuthService(users, newMockSessionStore(), nil)
			req := studentRegistration()
			req.Role = tc.role
			req.RegistrationCode = tc.code

			_, err := svc.Register(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrForbidden)
			assert.Empty(t, users.users)
		})
	}
}

func TestAuthServiceRegisterSupervisorWithCode(t *testing.T) {
	svc := newTestAuthService(newMockUserStore(), newMockSessionStore(), nil)
	req := studentRegistration()
	req.Role = models.RoleSupervisor
	req.RegistrationCode = "supervisor-secret"

	res, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/supervisor", res.RedirectTo)
}

func TestAuthServiceRegisterClosed(t *testing.T) {
	users := newMockUserStore()
	settings := &mockSettings{bools: map[string]bool{SettingRegistrationOpen: false}}
	svc := newTestAuthService(users, newMockSessionStore(), settings)

	_, err := svc.Register(context.Background(), studentRegistration())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, users.users)
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc := newTestAuthService(newMockUserStore(), newMockSessionStore(), nil)
	req := studentRegistration()
	req.Email = "not-an-email"

	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuthServiceLogin(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", PasswordHash: hashPassword(t, "Secret1!"), Role: models.RoleStudent})
	sessions := newMockSessionStore()
	svc := newTestAuthService(users, sessions, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ama@cug.edu.gh", Password: "Secret1!"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "/dashboard/student", res.RedirectTo)
	assert.NotNil(t, users.users["u1"].LastLogin)
	assert.Len(t, sessions.sessions, 1)
	assert.Contains(t, users.actions(), models.AuditActionLogin)
}

func TestAuthServiceLoginInvalidCredentials(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", PasswordHash: hashPassword(t, "Secret1!"), Role: models.RoleStudent})
	svc := newTestAuthService(users, newMockSessionStore(), nil)

	_, wrongPassword := svc.Login(context.Background(), models.LoginRequest{Email: "ama@cug.edu.gh", Password: "wrong"})
	_, unknownEmail := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@cug.edu.gh", Password: "Secret1!"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, 401, appErr.Status)
		assert.Equal(t, "Invalid credentials", appErr.Message)
	}
}

func TestAuthServiceResolveSession(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", PasswordHash: hashPassword(t, "Secret1!"), Role: models.RoleStudent})
	sessions := newMockSessionStore()
	svc := newTestAuthService(users, sessions, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ama@cug.edu.gh", Password: "Secret1!"})
	require.NoError(t, err)

	principal, err := svc.ResolveSession(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, models.RoleStudent, principal.Role)
	assert.False(t, principal.Refreshed)

	_, err = svc.ResolveSession(context.Background(), "forged-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = svc.ResolveSession(context.Background(), "")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceResolveSessionSlidesExpiry(t *testing.T) {
	sessions := newMockSessionStore()
	svc := newTestAuthService(newMockUserStore(), sessions, nil)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	token := "sliding-token"
	id := session.HashToken(token)
	sessions.sessions[id] = &models.Session{
		ID:        id,
		UserID:    "u1",
		Role:      models.RoleStudent,
		CreatedAt: now.Add(-40 * time.Minute),
		ExpiresAt: now.Add(20 * time.Minute),
	}

	principal, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, principal.Refreshed)
	assert.Equal(t, now.Add(time.Hour), principal.ExpiresAt)
	assert.Equal(t, 1, sessions.extended)

	fresh := "fresh-token"
	freshID := session.HashToken(fresh)
	sessions.sessions[freshID] = &models.Session{ID: freshID, UserID: "u1", Role: models.RoleStudent, CreatedAt: now, ExpiresAt: now.Add(50 * time.Minute)}
	principal, err = svc.ResolveSession(context.Background(), fresh)
	require.NoError(t, err)
	assert.False(t, principal.Refreshed)
	assert.Equal(t, 1, sessions.extended)
}

func TestAuthServiceResolveSessionRespectsMaxLifetime(t *testing.T) {
	sessions := newMockSessionStore()
	svc := newTestAuthService(newMockUserStore(), sessions, nil)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	token := "old-token"
	id := session.HashToken(token)
	sessions.sessions[id] = &models.Session{
		ID:        id,
		UserID:    "u1",
		Role:      models.RoleStudent,
		CreatedAt: now.Add(-4*time.Hour + 10*time.Minute),
		ExpiresAt: now.Add(5 * time.Minute),
	}

	principal, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, principal.Refreshed)
	assert.Equal(t, now.Add(10*time.Minute), principal.ExpiresAt)
}

func TestAuthServiceLogoutIsIdempotent(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", PasswordHash: hashPassword(t, "Secret1!"), Role: models.RoleStudent})
	sessions := newMockSessionStore()
	svc := newTestAuthService(users, sessions, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ama@cug.edu.gh", Password: "Secret1!"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), res.Token, models.LoginRequest{}))
	require.NoError(t, svc.Logout(context.Background(), res.Token, models.LoginRequest{}))
	require.NoError(t, svc.Logout(context.Background(), "", models.LoginRequest{}))
	assert.Empty(t, sessions.sessions)

	_, err = svc.ResolveSession(context.Background(), res.Token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	logouts := 0
	for _, action := range users.actions() {
		if action == models.AuditActionLogout {
			logouts++
		}
	}
	assert.Equal(t, 1, logouts)
}

func TestAuthServiceChangePasswordRevokesOtherSessions(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", PasswordHash: hashPassword(t, "Secret1!"), Role: models.RoleStudent})
	sessions := newMockSessionStore()
	svc := newTestAuthService(users, sessions, nil)
	ctx := context.Background()

	first, err := svc.Login(ctx, models.LoginRequest{Email: "ama@cug.edu.gh", Password: "Secret1!"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, models.LoginRequest{Email: "ama@cug.edu.gh", Password: "Secret1!"})
	require.NoError(t, err)

	principal, err := svc.ResolveSession(ctx, first.Token)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, principal, models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "Another1!"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, svc.ChangePassword(ctx, principal, models.ChangePasswordRequest{OldPassword: "Secret1!", NewPassword: "Another1!"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users.users["u1"].PasswordHash), []byte("Another1!")))

	_, err = svc.ResolveSession(ctx, first.Token)
	assert.NoError(t, err)
	_, err = svc.ResolveSession(ctx, second.Token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServicePurgeExpiredSessions(t *testing.T) {
	sessions := newMockSessionStore()
	svc := newTestAuthService(newMockUserStore(), sessions, nil)
	past := time.Now().UTC().Add(-time.Minute)
	sessions.sessions["a"] = &models.Session{ID: "a", UserID: "u1", ExpiresAt: past}
	sessions.sessions["b"] = &models.Session{ID: "b", UserID: "u1", ExpiresAt: time.Now().UTC().Add(time.Hour)}

	n, err := svc.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Contains(t, sessions.sessions, "b")
}
