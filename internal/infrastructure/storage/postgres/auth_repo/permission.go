package auth_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/security"
	"crmflow/internal/domain/access"
	"crmflow/internal/infrastructure/storage/postgres"
)

// PermissionRepo implements access.OverrideStore over role_permission_overrides.
type PermissionRepo struct {
	txm *postgres.TxManager
}

// NewPermissionRepo creates a new permission override repository.
func NewPermissionRepo(txm *postgres.TxManager) *PermissionRepo {
	return &PermissionRepo{txm: txm}
}

// ListByRole retrieves the overrides of one role.
func (r *PermissionRepo) ListByRole(ctx context.Context, role security.Role) ([]access.Override, error) {
	q := r.txm.GetQuerier(ctx)

	query := `
		SELECT role, permission, allowed, updated_by, updated_at
		FROM role_permission_overrides
		WHERE role = $1
		ORDER BY permission
	`

	var overrides []access.Override
	if err := pgxscan.Select(ctx, q, &overrides, query, string(role)); err != nil {
		return nil, fmt.Errorf("query permission overrides: %w", err)
	}

	return overrides, nil
}

// Upsert stores an override, replacing an existing one.
func (r *PermissionRepo) Upsert(ctx context.Context, o access.Override) error {
	q := r.txm.GetQuerier(ctx)

	query := `
		INSERT INTO role_permission_overrides (role, permission, allowed, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, permission) DO UPDATE SET
			allowed = EXCLUDED.allowed,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := q.Exec(ctx, query, string(o.Role), o.Permission, o.Allowed, o.UpdatedBy, o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert permission override: %w", err)
	}

	return nil
}

// Delete removes an override. Removing a missing override is not an error.
func (r *PermissionRepo) Delete(ctx context.Context, role security.Role, permission string) error {
	q := r.txm.GetQuerier(ctx)

	query := `DELETE FROM role_permission_overrides WHERE role = $1 AND permission = $2`
	if _, err := q.Exec(ctx, query, string(role), permission); err != nil {
		return fmt.Errorf("delete permission override: %w", err)
	}

	return nil
}

var _ access.OverrideStore = (*PermissionRepo)(nil)
