// Package company_repo provides the PostgreSQL company repository.
package company_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain"
	"crmflow/internal/domain/company"
	"crmflow/internal/infrastructure/storage/postgres"
)

const tableName = "companies"

var (
	selectCols = postgres.Columns[company.Company]()

	// returned by bulk transitions for notification fan-out
	assigneeCols = "RETURNING id, name, assigned_data_collector_id, assigned_converter_id"
)

// Repo implements company.Repository.
type Repo struct {
	txm *postgres.TxManager
}

// NewRepo creates a company repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

func baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(selectCols...).From(tableName)
}

// GetByID retrieves a company by ID.
func (r *Repo) GetByID(ctx context.Context, companyID id.ID) (*company.Company, error) {
	return r.get(ctx, baseSelect().Where(squirrel.Eq{"id": companyID}), companyID)
}

// GetForUpdate retrieves a company and locks the row.
func (r *Repo) GetForUpdate(ctx context.Context, companyID id.ID) (*company.Company, error) {
	return r.get(ctx, lockQuery(companyID), companyID)
}

func lockQuery(companyID id.ID) squirrel.SelectBuilder {
	return baseSelect().Where(squirrel.Eq{"id": companyID}).Suffix("FOR UPDATE")
}

func (r *Repo) get(ctx context.Context, q squirrel.SelectBuilder, companyID id.ID) (*company.Company, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c company.Company
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("company", companyID.String())
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// SaveFinalization writes the finalization fields of c.
func (r *Repo) SaveFinalization(ctx context.Context, c *company.Company) error {
	return r.execOne(ctx, saveFinalizationQuery(c), c.ID)
}

func saveFinalizationQuery(c *company.Company) squirrel.UpdateBuilder {
	var status any
	if c.FinalizationStatus != nil {
		status = string(*c.FinalizationStatus)
	}

	return postgres.Builder().
		Update(tableName).
		Set("finalization_status", status).
		Set("finalized_by_id", c.FinalizedByID).
		Set("finalized_at", c.FinalizedAt).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID})
}

// UpdateConversionStatus sets the pipeline stage.
func (r *Repo) UpdateConversionStatus(ctx context.Context, companyID id.ID, status company.ConversionStatus, at time.Time) error {
	q := postgres.Builder().
		Update(tableName).
		Set("conversion_status", string(status)).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": companyID})
	return r.execOne(ctx, q, companyID)
}

func (r *Repo) execOne(ctx context.Context, q squirrel.UpdateBuilder, companyID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("company", companyID.String())
	}
	return nil
}

// ApprovePending finalizes the ids currently Pending.
func (r *Repo) ApprovePending(ctx context.Context, ids []id.ID, by id.ID, at time.Time) ([]company.Assignees, error) {
	return r.returning(ctx, approveQuery(ids, by, at))
}

func approveQuery(ids []id.ID, by id.ID, at time.Time) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(tableName).
		Set("finalization_status", string(company.FinalizationFinalized)).
		Set("finalized_by_id", by).
		Set("finalized_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": ids}).
		Where(squirrel.Eq{"finalization_status": string(company.FinalizationPending)}).
		Suffix(assigneeCols)
}

// ResetToPending returns every id to Pending and clears finalize metadata.
func (r *Repo) ResetToPending(ctx context.Context, ids []id.ID, at time.Time) ([]company.Assignees, error) {
	return r.returning(ctx, resetQuery(ids, at))
}

func resetQuery(ids []id.ID, at time.Time) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(tableName).
		Set("finalization_status", string(company.FinalizationPending)).
		Set("finalized_by_id", nil).
		Set("finalized_at", nil).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": ids}).
		Suffix(assigneeCols)
}

func (r *Repo) returning(ctx context.Context, q squirrel.UpdateBuilder) ([]company.Assignees, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var out []company.Assignees
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("bulk update companies: %w", err)
	}
	return out, nil
}

// ListPending lists the approval queue.
func (r *Repo) ListPending(ctx context.Context, scope company.QueueScope, p domain.Pagination) ([]company.Company, int64, error) {
	q := r.txm.GetQuerier(ctx)
	where := pendingWhere(scope)

	countSQL, countArgs, err := postgres.Builder().Select("COUNT(*)").From(tableName).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	var total int64
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending companies: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	sql, args, err := baseSelect().
		Where(where).
		OrderBy("updated_at ASC", "id ASC").
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var items []company.Company
	if err := pgxscan.Select(ctx, q, &items, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list pending companies: %w", err)
	}
	return items, total, nil
}

func pendingWhere(scope company.QueueScope) squirrel.Sqlizer {
	pending := squirrel.Eq{"finalization_status": string(company.FinalizationPending)}
	if scope.ConverterID == nil {
		return pending
	}
	return squirrel.And{
		pending,
		squirrel.Or{
			squirrel.Eq{"assigned_converter_id": *scope.ConverterID},
			squirrel.Eq{"is_public": true},
		},
	}
}

// DeleteMany removes companies.
func (r *Repo) DeleteMany(ctx context.Context, ids []id.ID) (int64, error) {
	sql, args, err := postgres.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete companies: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ company.Repository = (*Repo)(nil)
