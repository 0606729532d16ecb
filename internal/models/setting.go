package models

import "time"

// SettingType defines supported types for setting values.
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeInteger SettingType = "integer"
)

// Setting represents a persisted application setting.
type Setting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description string      `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// SettingUpdate is one key/value change requested by an admin.
type SettingUpdate struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// BulkSettingsRequest applies several updates atomically.
type BulkSettingsRequest struct {
	Items []SettingUpdate `json:"items" validate:"required,min=1,dive"`
}
