// Package access_repo resolves row ownership for the access gate.
package access_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/access"
	"crmflow/internal/infrastructure/storage/postgres"
)

// OwnershipRepo implements access.OwnershipLookup.
type OwnershipRepo struct {
	txm *postgres.TxManager
}

// NewOwnershipRepo creates the lookup.
func NewOwnershipRepo(txm *postgres.TxManager) *OwnershipRepo {
	return &OwnershipRepo{txm: txm}
}

// Ownership loads the owner and raiser of one row. target comes from
// access.ResolveOwnership, so its identifiers are whitelisted.
func (r *OwnershipRepo) Ownership(ctx context.Context, target access.OwnershipTarget, resourceID id.ID) (access.Ownership, error) {
	var out access.Ownership
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &out, ownershipQuery(target), resourceID); err != nil {
		if pgxscan.NotFound(err) {
			return out, apperror.NewNotFound(target.Table, resourceID.String())
		}
		return out, fmt.Errorf("load ownership of %s: %w", target.Table, err)
	}
	return out, nil
}

func ownershipQuery(target access.OwnershipTarget) string {
	raiser := "NULL::uuid"
	if target.RaiserColumn != "" {
		raiser = target.RaiserColumn
	}
	return fmt.Sprintf("SELECT %s AS owner_id, %s AS raised_by_id FROM %s WHERE id = $1",
		target.OwnerColumn, raiser, target.Table)
}

var _ access.OwnershipLookup = (*OwnershipRepo)(nil)
