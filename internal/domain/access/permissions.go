package access

import (
	"context"
	"fmt"
	"time"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
	"crmflow/pkg/logger"
)

// Override is one persisted deviation from the default role table.
type Override struct {
	Role       security.Role `db:"role"`
	Permission string        `db:"permission"`
	Allowed    bool          `db:"allowed"`
	UpdatedBy  *id.ID        `db:"updated_by"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// OverrideStore persists runtime permission overrides.
type OverrideStore interface {
	ListByRole(ctx context.Context, role security.Role) ([]Override, error)
	Upsert(ctx context.Context, o Override) error
	Delete(ctx context.Context, role security.Role, permission string) error
}

// PermissionSource resolves effective permissions: the static table
// overlaid with runtime overrides. It reads storage on every call.
type PermissionSource struct {
	store  OverrideStore
	events securityevent.Recorder
	now    func() time.Time
}

// NewPermissionSource creates a PermissionSource. A nil store serves the
// static table only.
func NewPermissionSource(store OverrideStore, events securityevent.Recorder) *PermissionSource {
	return &PermissionSource{store: store, events: events, now: time.Now}
}

// Permissions implements PermissionProvider. A role without a table entry
// fails closed.
func (s *PermissionSource) Permissions(ctx context.Context, role security.Role) (security.RolePermissions, error) {
	base, ok := security.Lookup(role)
	if !ok {
		logger.Error(ctx, "role has no permission entry", "role", string(role))
		rc := appctx.GetRequest(ctx)
		s.events.Record(ctx, securityevent.RolePermissionsMissing, rc.UserID(), rc,
			securityevent.SeverityHigh, map[string]any{"role": string(role)})
		return security.NoPermissions, nil
	}

	if s.store == nil || !security.IsEditable(role) {
		return base, nil
	}

	overrides, err := s.store.ListByRole(ctx, role)
	if err != nil {
		return security.NoPermissions, fmt.Errorf("load permission overrides for %s: %w", role, err)
	}

	for _, o := range overrides {
		p, ok := security.ParsePermission(o.Permission)
		if !ok {
			logger.Warn(ctx, "ignoring unknown permission override", "role", string(role), "permission", o.Permission)
			continue
		}
		base = base.With(p, o.Allowed)
	}
	return base, nil
}

// SetOverride persists allowed for (role, p). Admin is not editable.
func (s *PermissionSource) SetOverride(ctx context.Context, actorID id.ID, role security.Role, p security.Permission, allowed bool) error {
	if err := s.checkEditable(role); err != nil {
		return err
	}

	err := s.store.Upsert(ctx, Override{
		Role:       role,
		Permission: p.Key(),
		Allowed:    allowed,
		UpdatedBy:  &actorID,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("save permission override: %w", err)
	}

	s.recordChange(ctx, actorID, role, p, map[string]any{"allowed": allowed})
	return nil
}

// ClearOverride restores the default value of (role, p).
func (s *PermissionSource) ClearOverride(ctx context.Context, actorID id.ID, role security.Role, p security.Permission) error {
	if err := s.checkEditable(role); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, role, p.Key()); err != nil {
		return fmt.Errorf("delete permission override: %w", err)
	}

	s.recordChange(ctx, actorID, role, p, map[string]any{"reset": true})
	return nil
}

// Matrix returns the effective permissions of every role.
func (s *PermissionSource) Matrix(ctx context.Context) (map[security.Role]security.RolePermissions, error) {
	out := make(map[security.Role]security.RolePermissions, len(security.AllRoles))
	for _, role := range security.AllRoles {
		rp, err := s.Permissions(ctx, role)
		if err != nil {
			return nil, err
		}
		out[role] = rp
	}
	return out, nil
}

func (s *PermissionSource) checkEditable(role security.Role) error {
	if !role.IsValid() {
		return apperror.NewFieldValidation("role", fmt.Sprintf("unknown role %q", role))
	}
	if !security.IsEditable(role) {
		return apperror.NewForbidden("Admin permissions cannot be modified").
			WithDetail("role", string(role))
	}
	if s.store == nil {
		return apperror.NewInternal(fmt.Errorf("permission override store is not configured"))
	}
	return nil
}

func (s *PermissionSource) recordChange(ctx context.Context, actorID id.ID, role security.Role, p security.Permission, extra map[string]any) {
	details := map[string]any{"role": string(role), "permission": p.Key()}
	for k, v := range extra {
		details[k] = v
	}
	s.events.Record(ctx, securityevent.PermissionOverrideChanged, &actorID, appctx.GetRequest(ctx),
		securityevent.SeverityOf(securityevent.PermissionOverrideChanged), details)
}

var _ PermissionProvider = (*PermissionSource)(nil)
