package models

import "time"

// RegisterRequest holds the self-registration payload.
type RegisterRequest struct {
	FullName         string   `json:"full_name" validate:"required,max=120"`
	Email            string   `json:"email" validate:"required,email"`
	IndexNumber      string   `json:"index_number" validate:"required,max=32"`
	PhoneNumber      string   `json:"phone_number" validate:"required,max=32"`
	Password         string   `json:"password" validate:"required,min=6,max=72"`
	Role             UserRole `json:"user_type" validate:"required,oneof=student supervisor admin"`
	RegistrationCode string   `json:"registration_code"`
	IP               string   `json:"-"`
	UserAgent        string   `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AuthResult is returned by register and login. Token is the opaque session token
// that the transport layer encodes into the cookie.
type AuthResult struct {
	User       *User
	Token      string
	ExpiresAt  time.Time
	RedirectTo string
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"current_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

// UpdateRoleRequest lets an admin move a user to a different role.
type UpdateRoleRequest struct {
	Role UserRole `json:"user_type" validate:"required,oneof=student supervisor admin"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	IndexNumber string    `json:"index_number"`
	PhoneNumber string    `json:"phone_number"`
	Role        UserRole  `json:"user_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewUserInfo projects the public profile fields of a user.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		IndexNumber: u.IndexNumber,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// UserSummary is the admin listing view of a user.
type UserSummary struct {
	UserInfo
	LastLogin      *time.Time `json:"last_login,omitempty"`
	ActiveSessions int        `json:"active_sessions"`
}
