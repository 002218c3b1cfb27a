// Package followup manages company follow-ups and the propose/review
// workflow used to delete them without a direct delete right.
package followup

import (
	"strings"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
)

// FollowUp is one follow_ups row.
type FollowUp struct {
	ID            id.ID     `db:"id" json:"id"`
	CompanyID     id.ID     `db:"company_id" json:"company_id"`
	ContactedDate time.Time `db:"contacted_date" json:"contacted_date"`
	FollowUpDate  time.Time `db:"follow_up_date" json:"follow_up_date"`
	Notes         string    `db:"follow_up_notes" json:"follow_up_notes"`
	ContactedByID *id.ID    `db:"contacted_by_id" json:"contacted_by_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Validate enforces follow_up_date strictly after contacted_date.
func (f *FollowUp) Validate() error {
	if id.IsNil(f.CompanyID) {
		return apperror.NewFieldValidation("company_id", "company is required")
	}
	if f.ContactedDate.IsZero() {
		return apperror.NewFieldValidation("contacted_date", "contacted date is required")
	}
	if f.FollowUpDate.IsZero() {
		return apperror.NewFieldValidation("follow_up_date", "follow-up date is required")
	}
	if !f.FollowUpDate.After(f.ContactedDate) {
		return apperror.NewFieldValidation("follow_up_date", "follow-up date must be after the contacted date")
	}
	return nil
}

// CreateInput holds the fields of a new follow-up.
type CreateInput struct {
	CompanyID     id.ID
	ContactedDate time.Time
	FollowUpDate  time.Time
	Notes         string
	ContactedByID *id.ID
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	ContactedDate *time.Time
	FollowUpDate  *time.Time
	Notes         *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.ContactedDate == nil && p.FollowUpDate == nil && p.Notes == nil
}

// Apply merges p onto f.
func (f *FollowUp) Apply(p Patch) {
	if p.ContactedDate != nil {
		f.ContactedDate = *p.ContactedDate
	}
	if p.FollowUpDate != nil {
		f.FollowUpDate = *p.FollowUpDate
	}
	if p.Notes != nil {
		f.Notes = *p.Notes
	}
}

// DeletionStatus is the state of a deletion request.
type DeletionStatus string

const (
	DeletionPending  DeletionStatus = "pending"
	DeletionApproved DeletionStatus = "approved"
	DeletionRejected DeletionStatus = "rejected"
)

// ReviewAction is the reviewer's decision.
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
)

// ParseReviewAction validates a decision from input.
func ParseReviewAction(s string) (ReviewAction, error) {
	switch a := ReviewAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", apperror.NewFieldValidation("action", "action must be approve or reject")
}

// DeletionRequest is one followup_deletion_requests row.
type DeletionRequest struct {
	ID              id.ID          `db:"id" json:"id"`
	FollowUpID      id.ID          `db:"followup_id" json:"followup_id"`
	CompanyID       id.ID          `db:"company_id" json:"company_id"`
	RequestedByID   id.ID          `db:"requested_by_id" json:"requested_by_id"`
	Reason          *string        `db:"reason" json:"reason,omitempty"`
	Status          DeletionStatus `db:"status" json:"status"`
	ReviewedByID    *id.ID         `db:"reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Review moves a pending request to its terminal state. Terminal requests
// are immutable.
func (r *DeletionRequest) Review(reviewer id.ID, action ReviewAction, rejectionReason *string, at time.Time) error {
	if r.Status != DeletionPending {
		return apperror.NewStateConflict(apperror.CodeDeletionAlreadyReviewed, "deletion request has already been reviewed").
			WithDetail("status", string(r.Status))
	}

	switch action {
	case ActionApprove:
		r.Status = DeletionApproved
		r.RejectionReason = nil
	case ActionReject:
		r.Status = DeletionRejected
		r.RejectionReason = trimmed(rejectionReason)
	default:
		return apperror.NewFieldValidation("action", "action must be approve or reject")
	}

	r.ReviewedByID = &reviewer
	r.ReviewedAt = &at
	return nil
}

// trimmed returns nil for a nil or blank string.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
