package work_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/ticket"
	"crmflow/internal/infrastructure/storage/postgres"
)

var ticketCols = postgres.Columns[ticket.Ticket]()

// TicketRepo implements ticket.Repository.
type TicketRepo struct {
	txm *postgres.TxManager
}

// NewTicketRepo creates a ticket repository.
func NewTicketRepo(txm *postgres.TxManager) *TicketRepo {
	return &TicketRepo{txm: txm}
}

// GetByID retrieves a ticket.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID id.ID) (*ticket.Ticket, error) {
	sql, args, err := postgres.Builder().
		Select(ticketCols...).
		From("tickets").
		Where(squirrel.Eq{"id": ticketID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t ticket.Ticket
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ticket", ticketID.String())
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

var _ ticket.Repository = (*TicketRepo)(nil)
