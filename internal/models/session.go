package models

import "time"

// Session is the server-side record behind a session cookie. ID holds the token hash,
// never the token itself. Role is a copy of the user's role taken at login.
type Session struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Role       UserRole  `db:"user_type" json:"user_type"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	SessionID string
	UserID    string
	Role      UserRole
	// Token is the raw session token, kept so the cookie can be re-issued on refresh.
	Token     string
	ExpiresAt time.Time
	Refreshed bool
}

// HasRole reports whether the principal holds any of the roles.
func (p *Principal) HasRole(roles ...UserRole) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
