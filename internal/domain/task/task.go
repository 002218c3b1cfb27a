// Package task holds work items assigned to users.
package task

import (
	"context"
	"fmt"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/tx"
)

// Status is the task progress state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task is one tasks row.
type Task struct {
	ID           id.ID      `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Status       Status     `db:"status" json:"status"`
	CompanyID    *id.ID     `db:"company_id" json:"company_id,omitempty"`
	AssignedToID *id.ID     `db:"assigned_to_id" json:"assigned_to_id,omitempty"`
	RaisedByID   *id.ID     `db:"raised_by_id" json:"raised_by_id,omitempty"`
	DueDate      *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Repository persists tasks.
type Repository interface {
	GetByID(ctx context.Context, taskID id.ID) (*Task, error)
	GetForUpdate(ctx context.Context, taskID id.ID) (*Task, error)
	UpdateStatus(ctx context.Context, taskID id.ID, status Status, at time.Time) error
}

// Service updates tasks.
type Service struct {
	repo      Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a task service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns a task.
func (s *Service) Get(ctx context.Context, taskID id.ID) (*Task, error) {
	return s.repo.GetByID(ctx, taskID)
}

// UpdateStatus changes a task's status. With mustBeAssigned the caller has
// to be the task's assignee.
func (s *Service) UpdateStatus(ctx context.Context, taskID, actingUserID id.ID, mustBeAssigned bool, status Status) (*Task, error) {
	if !status.IsValid() {
		return nil, apperror.NewFieldValidation("status", "unknown task status").WithDetail("value", string(status))
	}

	var out *Task
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if mustBeAssigned && !id.Equal(t.AssignedToID, actingUserID) {
			return apperror.NewForbidden("you can only update tasks assigned to you")
		}

		now := s.now()
		if err := s.repo.UpdateStatus(ctx, taskID, status, now); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		t.Status = status
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
