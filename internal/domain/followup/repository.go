package followup

import (
	"context"

	"crmflow/internal/core/id"
	"crmflow/internal/domain"
)

// Repository persists follow-ups. Lookups of missing rows return an
// apperror NotFound.
type Repository interface {
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, followUpID id.ID) (*FollowUp, error)
	GetForUpdate(ctx context.Context, followUpID id.ID) (*FollowUp, error)
	Update(ctx context.Context, f *FollowUp) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, followUpID id.ID) (bool, error)
	ListByCompany(ctx context.Context, companyID id.ID) ([]FollowUp, error)
}

// DeletionRequestRepository persists deletion requests.
type DeletionRequestRepository interface {
	// Create fails with DELETION_ALREADY_PENDING when a pending request
	// exists for the same follow-up.
	Create(ctx context.Context, r *DeletionRequest) error
	GetForUpdate(ctx context.Context, requestID id.ID) (*DeletionRequest, error)
	// FindPending returns the pending request of a follow-up, or nil.
	FindPending(ctx context.Context, followUpID id.ID) (*DeletionRequest, error)
	SaveReview(ctx context.Context, r *DeletionRequest) error
	// DeletePending removes a pending request raised by requesterID and
	// reports whether one matched.
	DeletePending(ctx context.Context, requestID, requesterID id.ID) (bool, error)
	ListPending(ctx context.Context, p domain.Pagination) ([]DeletionRequest, int64, error)
	ListByRequester(ctx context.Context, requesterID id.ID, p domain.Pagination) ([]DeletionRequest, int64, error)
}
