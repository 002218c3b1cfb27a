package dto

import (
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/followup"
)

// UpdateCompanyRequest is the PUT /companies/:id body.
type UpdateCompanyRequest struct {
	ConversionStatus string `json:"conversion_status" binding:"required"`
}

// CreateFollowUpRequest is the POST /companies/:id/follow-ups body.
type CreateFollowUpRequest struct {
	ContactedDate time.Time `json:"contacted_date" binding:"required"`
	FollowUpDate  time.Time `json:"follow_up_date" binding:"required,gtfield=ContactedDate"`
	Notes         string    `json:"follow_up_notes"`
}

// ToInput converts to the domain input.
func (r *CreateFollowUpRequest) ToInput(companyID id.ID, contactedBy *id.ID) followup.CreateInput {
	return followup.CreateInput{
		CompanyID:     companyID,
		ContactedDate: r.ContactedDate,
		FollowUpDate:  r.FollowUpDate,
		Notes:         r.Notes,
		ContactedByID: contactedBy,
	}
}

// UpdateFollowUpRequest is a partial update; absent fields stay unchanged.
type UpdateFollowUpRequest struct {
	ContactedDate *time.Time `json:"contacted_date"`
	FollowUpDate  *time.Time `json:"follow_up_date"`
	Notes         *string    `json:"follow_up_notes"`
}

// ToPatch converts to the domain patch.
func (r *UpdateFollowUpRequest) ToPatch() followup.Patch {
	return followup.Patch{
		ContactedDate: r.ContactedDate,
		FollowUpDate:  r.FollowUpDate,
		Notes:         r.Notes,
	}
}

// DeletionRequestBody is the POST /follow-ups/:id/deletion-requests body.
type DeletionRequestBody struct {
	Reason *string `json:"reason"`
}

// ReviewRequest is the POST /deletion-requests/:id/review body.
type ReviewRequest struct {
	Action          string  `json:"action" binding:"required"`
	RejectionReason *string `json:"rejection_reason"`
}

// UpdateTaskStatusRequest is the PATCH /tasks/:id/status body.
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ParseIDs converts the ids of a bulk body.
func (r *BulkRequest) ParseIDs() ([]id.ID, error) {
	ids, err := id.ParseList("ids", r.IDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperror.NewFieldValidation("ids", "at least one id is required")
	}
	return ids, nil
}
