package models

import "time"

// NotificationKind enumerates the events users are notified about.
type NotificationKind string

const (
	NotificationResourceApproved  NotificationKind = "resource_approved"
	NotificationResourceRejected  NotificationKind = "resource_rejected"
	NotificationResourceSubmitted NotificationKind = "resource_submitted"
)

// Notification is an outbox row addressed to a single user.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"userId"`
	ResourceID  *string          `db:"resource_id" json:"resourceId,omitempty"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	Attempts    int              `db:"attempts" json:"-"`
	ReadAt      *time.Time       `db:"read_at" json:"readAt,omitempty"`
	DeliveredAt *time.Time       `db:"delivered_at" json:"-"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}
