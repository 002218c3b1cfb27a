// Package ticket holds support tickets raised against companies.
package ticket

import (
	"context"
	"time"

	"crmflow/internal/core/id"
)

// Ticket is one tickets row.
type Ticket struct {
	ID           id.ID     `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Status       string    `db:"status" json:"status"`
	Priority     string    `db:"priority" json:"priority"`
	CompanyID    *id.ID    `db:"company_id" json:"company_id,omitempty"`
	AssignedToID *id.ID    `db:"assigned_to_id" json:"assigned_to_id,omitempty"`
	RaisedByID   *id.ID    `db:"raised_by_id" json:"raised_by_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Repository reads tickets.
type Repository interface {
	GetByID(ctx context.Context, ticketID id.ID) (*Ticket, error)
}

// Service serves ticket reads. Access is decided by the ownership guard.
type Service struct {
	repo Repository
}

// NewService creates a ticket service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a ticket.
func (s *Service) Get(ctx context.Context, ticketID id.ID) (*Ticket, error) {
	return s.repo.GetByID(ctx, ticketID)
}
