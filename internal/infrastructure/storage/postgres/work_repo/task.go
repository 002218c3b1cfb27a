// Package work_repo provides PostgreSQL repositories for tasks and tickets.
package work_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/task"
	"crmflow/internal/infrastructure/storage/postgres"
)

var taskCols = postgres.Columns[task.Task]()

// TaskRepo implements task.Repository.
type TaskRepo struct {
	txm *postgres.TxManager
}

// NewTaskRepo creates a task repository.
func NewTaskRepo(txm *postgres.TxManager) *TaskRepo {
	return &TaskRepo{txm: txm}
}

// GetByID retrieves a task.
func (r *TaskRepo) GetByID(ctx context.Context, taskID id.ID) (*task.Task, error) {
	return r.get(ctx, postgres.Builder().Select(taskCols...).From("tasks").Where(squirrel.Eq{"id": taskID}), taskID)
}

// GetForUpdate retrieves a task and locks the row.
func (r *TaskRepo) GetForUpdate(ctx context.Context, taskID id.ID) (*task.Task, error) {
	return r.get(ctx, postgres.Builder().Select(taskCols...).From("tasks").
		Where(squirrel.Eq{"id": taskID}).Suffix("FOR UPDATE"), taskID)
}

func (r *TaskRepo) get(ctx context.Context, q squirrel.SelectBuilder, taskID id.ID) (*task.Task, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t task.Task
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("task", taskID.String())
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// UpdateStatus sets the task status.
func (r *TaskRepo) UpdateStatus(ctx context.Context, taskID id.ID, status task.Status, at time.Time) error {
	q := r.txm.GetQuerier(ctx)

	result, err := q.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = $3 WHERE id = $1`, taskID, string(status), at)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("task", taskID.String())
	}
	return nil
}

var _ task.Repository = (*TaskRepo)(nil)
