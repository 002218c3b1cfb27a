package company

import (
	"context"
	"time"

	"crmflow/internal/core/id"
	"crmflow/internal/domain"
)

// Repository defines company storage operations.
type Repository interface {
	// GetByID returns the company or a NotFound error.
	GetByID(ctx context.Context, companyID id.ID) (*Company, error)

	// GetForUpdate loads the row and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, companyID id.ID) (*Company, error)

	// SaveFinalization writes the three finalization fields.
	SaveFinalization(ctx context.Context, c *Company) error

	// UpdateConversionStatus sets the pipeline stage.
	UpdateConversionStatus(ctx context.Context, companyID id.ID, status ConversionStatus, at time.Time) error

	// ApprovePending finalizes those ids currently Pending in one statement.
	ApprovePending(ctx context.Context, ids []id.ID, by id.ID, at time.Time) ([]Assignees, error)

	// ResetToPending sets every id back to Pending and clears finalize metadata.
	ResetToPending(ctx context.Context, ids []id.ID, at time.Time) ([]Assignees, error)

	// ListPending lists the approval queue.
	ListPending(ctx context.Context, scope QueueScope, p domain.Pagination) ([]Company, int64, error)

	// DeleteMany removes companies, returning the number deleted.
	DeleteMany(ctx context.Context, ids []id.ID) (int64, error)
}
