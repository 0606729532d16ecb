package models

import "time"

// ResourceType enumerates the kinds of academic artefacts that can be uploaded.
type ResourceType string

const (
	ResourceTypePastExam     ResourceType = "past-exam"
	ResourceTypeMiniProject  ResourceType = "mini-project"
	ResourceTypeFinalProject ResourceType = "final-project"
	ResourceTypeThesis       ResourceType = "thesis"
)

// Valid reports whether the type is known.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypePastExam, ResourceTypeMiniProject, ResourceTypeFinalProject, ResourceTypeThesis:
		return true
	}
	return false
}

// ResourceStatus captures the review workflow state.
type ResourceStatus string

const (
	ResourceStatusPending  ResourceStatus = "pending"
	ResourceStatusApproved ResourceStatus = "approved"
	ResourceStatusRejected ResourceStatus = "rejected"
)

// Valid reports whether the status is known.
func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceStatusPending, ResourceStatusApproved, ResourceStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the review workflow allows moving from s to next.
// Only pending resources can be reviewed and review outcomes are terminal.
func (s ResourceStatus) CanTransitionTo(next ResourceStatus) bool {
	return s == ResourceStatusPending && (next == ResourceStatusApproved || next == ResourceStatusRejected)
}

// Resource is an uploaded academic artefact under review.
type Resource struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Type            ResourceType   `db:"type" json:"type"`
	Department      string         `db:"department" json:"department"`
	OwnerID         string         `db:"owner_id" json:"ownerId"`
	OwnerName       string         `db:"owner_name" json:"ownerName,omitempty"`
	SupervisorID    *string        `db:"supervisor_id" json:"supervisorId,omitempty"`
	SupervisorName  *string        `db:"supervisor_name" json:"supervisorName,omitempty"`
	Status          ResourceStatus `db:"status" json:"status"`
	RejectionReason *string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	ApprovalReason  *string        `db:"approval_reason" json:"approvalReason,omitempty"`
	ReviewedBy      *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	FileName        string         `db:"file_name" json:"fileName,omitempty"`
	FilePath        string         `db:"file_path" json:"-"`
	FileURL         string         `db:"file_url" json:"fileUrl,omitempty"`
	MimeType        string         `db:"mime_type" json:"mimeType,omitempty"`
	SizeBytes       int64          `db:"size_bytes" json:"sizeBytes"`
	Views           int64          `db:"views" json:"views"`
	Downloads       int64          `db:"downloads" json:"downloads"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
	DeletedAt       *time.Time     `db:"deleted_at" json:"-"`
}

// ResourceFilter narrows listing queries. Viewer fields apply role scoping.
type ResourceFilter struct {
	Status       ResourceStatus
	SupervisorID string
	Department   string
	Type         ResourceType
	OwnerID      string
	Search       string
	ViewerID     string
	ViewerRole   UserRole
	Page         int
	PageSize     int
}

// ResourceReview is the outcome recorded by a status transition.
type ResourceReview struct {
	ResourceID string
	Status     ResourceStatus
	Reason     *string
	ReviewerID string
	ReviewedAt time.Time
}
