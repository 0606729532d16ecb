package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceStatusTransitions(t *testing.T) {
	assert.True(t, ResourceStatusPending.CanTransitionTo(ResourceStatusApproved))
	assert.True(t, ResourceStatusPending.CanTransitionTo(ResourceStatusRejected))
	assert.False(t, ResourceStatusPending.CanTransitionTo(ResourceStatusPending))
	assert.False(t, ResourceStatusApproved.CanTransitionTo(ResourceStatusRejected))
	assert.False(t, ResourceStatusRejected.CanTransitionTo(ResourceStatusApproved))
	assert.False(t, ResourceStatusApproved.CanTransitionTo(ResourceStatusPending))
}

func TestRoleDashboardPath(t *testing.T) {
	assert.Equal(t, "/dashboard/student", RoleStudent.DashboardPath())
	assert.Equal(t, "/dashboard/admin", RoleAdmin.DashboardPath())
	assert.False(t, UserRole("guest").Valid())
}
