package followup_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain"
	"crmflow/internal/domain/followup"
	"crmflow/internal/infrastructure/storage/postgres"
)

const (
	requestsTable = "followup_deletion_requests"

	// partial unique index over (followup_id) WHERE status = 'pending'
	pendingConstraint = "uq_followup_deletion_pending"
)

var requestCols = postgres.Columns[followup.DeletionRequest]()

// DeletionRequestRepo implements followup.DeletionRequestRepository.
type DeletionRequestRepo struct {
	txm *postgres.TxManager
}

// NewDeletionRequestRepo creates a deletion request repository.
func NewDeletionRequestRepo(txm *postgres.TxManager) *DeletionRequestRepo {
	return &DeletionRequestRepo{txm: txm}
}

// Create inserts a request. The partial unique index turns a second pending
// request for one follow-up into DELETION_ALREADY_PENDING.
func (r *DeletionRequestRepo) Create(ctx context.Context, req *followup.DeletionRequest) error {
	sql, args, err := postgres.Builder().
		Insert(requestsTable).
		SetMap(postgres.ValueMap(req)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, pendingConstraint) {
			return apperror.NewStateConflict(apperror.CodeDeletionAlreadyPending,
				"a deletion request is already pending for this follow-up").
				WithDetail("followup_id", req.FollowUpID.String())
		}
		return fmt.Errorf("insert deletion request: %w", err)
	}
	return nil
}

// GetForUpdate retrieves a request and locks the row.
func (r *DeletionRequestRepo) GetForUpdate(ctx context.Context, requestID id.ID) (*followup.DeletionRequest, error) {
	sql, args, err := postgres.Builder().
		Select(requestCols...).
		From(requestsTable).
		Where(squirrel.Eq{"id": requestID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var req followup.DeletionRequest
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &req, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("deletion_request", requestID.String())
		}
		return nil, fmt.Errorf("get deletion request: %w", err)
	}
	return &req, nil
}

// FindPending returns the pending request of a follow-up, or nil.
func (r *DeletionRequestRepo) FindPending(ctx context.Context, followUpID id.ID) (*followup.DeletionRequest, error) {
	sql, args, err := postgres.Builder().
		Select(requestCols...).
		From(requestsTable).
		Where(squirrel.Eq{"followup_id": followUpID, "status": string(followup.DeletionPending)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var req followup.DeletionRequest
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &req, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending deletion request: %w", err)
	}
	return &req, nil
}

// SaveReview writes the review outcome. Only a pending row is updated, so a
// concurrent reviewer that slipped past the row lock cannot overwrite it.
func (r *DeletionRequestRepo) SaveReview(ctx context.Context, req *followup.DeletionRequest) error {
	sql, args, err := saveReviewQuery(req).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save deletion review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewStateConflict(apperror.CodeDeletionAlreadyReviewed, "deletion request has already been reviewed")
	}
	return nil
}

func saveReviewQuery(req *followup.DeletionRequest) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(requestsTable).
		Set("status", string(req.Status)).
		Set("reviewed_by_id", req.ReviewedByID).
		Set("reviewed_at", req.ReviewedAt).
		Set("rejection_reason", req.RejectionReason).
		Where(squirrel.Eq{"id": req.ID, "status": string(followup.DeletionPending)})
}

// DeletePending removes a pending request raised by requesterID.
func (r *DeletionRequestRepo) DeletePending(ctx context.Context, requestID, requesterID id.ID) (bool, error) {
	q := r.txm.GetQuerier(ctx)

	query := `
		DELETE FROM followup_deletion_requests
		WHERE id = $1 AND requested_by_id = $2 AND status = 'pending'
	`

	result, err := q.Exec(ctx, query, requestID, requesterID)
	if err != nil {
		return false, fmt.Errorf("cancel deletion request: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListPending lists the review queue, oldest first.
func (r *DeletionRequestRepo) ListPending(ctx context.Context, p domain.Pagination) ([]followup.DeletionRequest, int64, error) {
	return r.list(ctx, squirrel.Eq{"status": string(followup.DeletionPending)}, "created_at ASC", p)
}

// ListByRequester lists a user's own requests, newest first.
func (r *DeletionRequestRepo) ListByRequester(ctx context.Context, requesterID id.ID, p domain.Pagination) ([]followup.DeletionRequest, int64, error) {
	return r.list(ctx, squirrel.Eq{"requested_by_id": requesterID}, "created_at DESC", p)
}

func (r *DeletionRequestRepo) list(ctx context.Context, where squirrel.Eq, order string, p domain.Pagination) ([]followup.DeletionRequest, int64, error) {
	q := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := postgres.Builder().Select("COUNT(*)").From(requestsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	var total int64
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deletion requests: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	sql, args, err := postgres.Builder().
		Select(requestCols...).
		From(requestsTable).
		Where(where).
		OrderBy(order, "id").
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var out []followup.DeletionRequest
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list deletion requests: %w", err)
	}
	return out, total, nil
}

var _ followup.DeletionRequestRepository = (*DeletionRequestRepo)(nil)
