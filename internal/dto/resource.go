package dto

import (
	"time"

	"github.com/noah-isme/docrepo-api/internal/models"
)

// CreateResourceRequest holds metadata submitted with an upload, as multipart fields or JSON.
type CreateResourceRequest struct {
	Title        string              `form:"title" json:"title" validate:"required,max=200"`
	Description  string              `form:"description" json:"description" validate:"max=4000"`
	Type         models.ResourceType `form:"type" json:"type" validate:"required,oneof=past-exam mini-project final-project thesis"`
	Department   string              `form:"department" json:"department" validate:"required,max=120"`
	SupervisorID *string             `form:"supervisorId" json:"supervisorId"`
	FileURL      string              `form:"fileUrl" json:"fileUrl" validate:"omitempty,url"`
}

// UpdateResourceRequest carries partial metadata edits.
type UpdateResourceRequest struct {
	Title        *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string              `json:"description" validate:"omitempty,max=4000"`
	Type         *models.ResourceType `json:"type" validate:"omitempty,oneof=past-exam mini-project final-project thesis"`
	Department   *string              `json:"department" validate:"omitempty,min=1,max=120"`
	SupervisorID *string              `json:"supervisorId"`
}

// ReviewResourceRequest is the body of a status transition. The reason may arrive under
// any of the three keys.
type ReviewResourceRequest struct {
	Status          models.ResourceStatus `json:"status" validate:"required,oneof=approved rejected"`
	ApprovalReason  *string               `json:"approvalReason"`
	RejectionReason *string               `json:"rejectionReason"`
	Reason          *string               `json:"reason"`
}

// ResourceLinkResponse is a time-limited public download link.
type ResourceLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResourceListQuery captures listing query parameters.
type ResourceListQuery struct {
	Status       string `form:"status"`
	SupervisorID string `form:"supervisorId"`
	Department   string `form:"department"`
	Type         string `form:"type"`
	Search       string `form:"search"`
	Page         int    `form:"page"`
	Limit        int    `form:"limit"`
}
