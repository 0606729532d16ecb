package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

func (m *mockUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockUserStore) UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

type failingRevoker struct{}

func (failingRevoker) RevokeSessions(ctx context.Context, userID, keepID string) error {
	return appErrors.Clone(appErrors.ErrInternal, "revoke failed")
}

func TestUserServiceList(t *testing.T) {
	users := newMockUserStore(
		&models.User{ID: "a", Email: "a@cug.edu.gh", Role: models.RoleStudent},
		&models.User{ID: "b", Email: "b@cug.edu.gh", Role: models.RoleSupervisor},
	)
	sessions := newMockSessionStore()
	sessions.sessions["s1"] = &models.Session{ID: "s1", UserID: "a", ExpiresAt: time.Now().Add(time.Hour)}
	sessions.sessions["s2"] = &models.Session{ID: "s2", UserID: "a", ExpiresAt: time.Now().Add(time.Hour)}
	svc := NewUserService(users, sessions, nil, nil, zap.NewNop())

	items, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].ActiveSessions)
	assert.Equal(t, 0, items[1].ActiveSessions)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 2, pagination.TotalCount)

	role := models.RoleSupervisor
	items, _, err = svc.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	bad := models.UserRole("guest")
	_, _, err = svc.List(context.Background(), models.UserFilter{Role: &bad})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceGetNotFound(t *testing.T) {
	svc := NewUserService(newMockUserStore(), nil, nil, nil, zap.NewNop())
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserServiceUpdateRoleRevokesSessions(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "u1", Email: "ama@cug.edu.gh", Role: models.RoleStudent})
	sessions := newMockSessionStore()
	sessions.sessions["s1"] = &models.Session{ID: "s1", UserID: "u1", Role: models.RoleStudent, ExpiresAt: time.Now().Add(time.Hour)}
	auth := newTestAuthService(users, sessions, nil)
	svc := NewUserService(users, sessions, auth, nil, zap.NewNop())
	admin := &models.Principal{UserID: "admin-1", Role: models.RoleAdmin}

	user, err := svc.UpdateRole(context.Background(), "u1", models.UpdateRoleRequest{Role: models.RoleSupervisor}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, user.Role)
	assert.Empty(t, sessions.sessions)
	require.NotEmpty(t, users.auditLogs)
	last := users.auditLogs[len(users.auditLogs)-1]
	assert.Equal(t, models.AuditActionRoleChange, last.Action)
	assert.Equal(t, "admin-1", *last.UserID)
}

func TestUserServiceUpdateRoleRules(t *testing.T) {
	users := newMockUserStore(&models.User{ID: "admin-1", Role: models.RoleAdmin})
	svc := NewUserService(users, nil, failingRevoker{}, nil, zap.NewNop())
	admin := &models.Principal{UserID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.UpdateRole(context.Background(), "admin-1", models.UpdateRoleRequest{Role: models.RoleStudent}, admin)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateRole(context.Background(), "missing", models.UpdateRoleRequest{Role: models.RoleStudent}, admin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateRole(context.Background(), "missing", models.UpdateRoleRequest{Role: "guest"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	users.users["u2"] = &models.User{ID: "u2", Role: models.RoleStudent}
	_, err = svc.UpdateRole(context.Background(), "u2", models.UpdateRoleRequest{Role: models.RoleAdmin}, admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
