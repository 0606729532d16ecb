package models

import "time"

// DashboardStats summarises the resources visible to a caller.
type DashboardStats struct {
	Role           UserRole               `json:"role"`
	Total          int64                  `json:"total"`
	Pending        int64                  `json:"pending"`
	Approved       int64                  `json:"approved"`
	Rejected       int64                  `json:"rejected"`
	TotalViews     int64                  `json:"totalViews"`
	TotalDownloads int64                  `json:"totalDownloads"`
	ByType         map[ResourceType]int64 `json:"byType"`
	UsersByRole    map[UserRole]int64     `json:"usersByRole,omitempty"`
	Recent         []Resource             `json:"recent"`
	GeneratedAt    time.Time              `json:"generatedAt"`
}

// StatusCount is a grouped count row.
type StatusCount struct {
	Status    ResourceStatus `db:"status"`
	Count     int64          `db:"count"`
	Views     int64          `db:"views"`
	Downloads int64          `db:"downloads"`
}

// TypeCount is a grouped count row.
type TypeCount struct {
	Type  ResourceType `db:"type"`
	Count int64        `db:"count"`
}

// RoleCount is a grouped count row.
type RoleCount struct {
	Role  UserRole `db:"user_type"`
	Count int64    `db:"count"`
}
