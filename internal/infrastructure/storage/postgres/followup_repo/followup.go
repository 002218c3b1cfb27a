// Package followup_repo provides PostgreSQL repositories for follow-ups and
// their deletion requests.
package followup_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/followup"
	"crmflow/internal/infrastructure/storage/postgres"
)

const followUpsTable = "follow_ups"

var followUpCols = postgres.Columns[followup.FollowUp]()

// FollowUpRepo implements followup.Repository.
type FollowUpRepo struct {
	txm *postgres.TxManager
}

// NewFollowUpRepo creates a follow-up repository.
func NewFollowUpRepo(txm *postgres.TxManager) *FollowUpRepo {
	return &FollowUpRepo{txm: txm}
}

// Create inserts a follow-up. An unknown company is reported as NotFound.
func (r *FollowUpRepo) Create(ctx context.Context, f *followup.FollowUp) error {
	sql, args, err := postgres.Builder().
		Insert(followUpsTable).
		SetMap(postgres.ValueMap(f)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("company", f.CompanyID.String())
		}
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

// GetByID retrieves a follow-up.
func (r *FollowUpRepo) GetByID(ctx context.Context, followUpID id.ID) (*followup.FollowUp, error) {
	return r.get(ctx, postgres.Builder().Select(followUpCols...).From(followUpsTable).
		Where(squirrel.Eq{"id": followUpID}), followUpID)
}

// GetForUpdate retrieves a follow-up and locks the row.
func (r *FollowUpRepo) GetForUpdate(ctx context.Context, followUpID id.ID) (*followup.FollowUp, error) {
	return r.get(ctx, postgres.Builder().Select(followUpCols...).From(followUpsTable).
		Where(squirrel.Eq{"id": followUpID}).Suffix("FOR UPDATE"), followUpID)
}

func (r *FollowUpRepo) get(ctx context.Context, q squirrel.SelectBuilder, followUpID id.ID) (*followup.FollowUp, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var f followup.FollowUp
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &f, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("follow_up", followUpID.String())
		}
		return nil, fmt.Errorf("get follow-up: %w", err)
	}
	return &f, nil
}

// Update writes the mutable columns of f.
func (r *FollowUpRepo) Update(ctx context.Context, f *followup.FollowUp) error {
	sql, args, err := postgres.Builder().
		Update(followUpsTable).
		Set("contacted_date", f.ContactedDate).
		Set("follow_up_date", f.FollowUpDate).
		Set("follow_up_notes", f.Notes).
		Set("updated_at", f.UpdatedAt).
		Where(squirrel.Eq{"id": f.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update follow-up: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("follow_up", f.ID.String())
	}
	return nil
}

// Delete removes a follow-up and reports whether it existed.
func (r *FollowUpRepo) Delete(ctx context.Context, followUpID id.ID) (bool, error) {
	q := r.txm.GetQuerier(ctx)

	result, err := q.Exec(ctx, `DELETE FROM follow_ups WHERE id = $1`, followUpID)
	if err != nil {
		return false, fmt.Errorf("delete follow-up: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByCompany lists a company's follow-ups by follow-up date.
func (r *FollowUpRepo) ListByCompany(ctx context.Context, companyID id.ID) ([]followup.FollowUp, error) {
	sql, args, err := postgres.Builder().
		Select(followUpCols...).
		From(followUpsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("follow_up_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []followup.FollowUp
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return out, nil
}

var _ followup.Repository = (*FollowUpRepo)(nil)
