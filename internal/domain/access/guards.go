package access

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
)

// RequireAuthenticated fails when no principal is attached.
func (g *Gate) RequireAuthenticated(ctx context.Context, rc *appctx.RequestContext) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}
	g.record(ctx, rc, securityevent.AuthenticationVerified, nil)
	return nil
}

// ValidateUserContext reloads the principal from storage and replaces the
// token's view of it. Storage is authoritative for role and status.
func (g *Gate) ValidateUserContext(ctx context.Context, rc *appctx.RequestContext) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	user, err := g.users.GetByID(ctx, rc.Principal.ID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return g.deny(ctx, rc, securityevent.UserNotFound, nil,
				apperror.NewUnauthorized("user not found"))
		}
		return g.deny(ctx, rc, securityevent.UserContextError,
			map[string]any{"error": err.Error()},
			apperror.NewInternal(err))
	}

	now := g.now()
	switch {
	case !user.IsActive:
		return g.deny(ctx, rc, securityevent.UserInactive, nil,
			apperror.NewUnauthorized("account is disabled"))
	case user.IsLocked(now):
		return g.deny(ctx, rc, securityevent.UserLocked,
			map[string]any{"locked_until": user.LockedUntil.UTC().Format(time.RFC3339)},
			apperror.NewUnauthorized("account is temporarily locked"))
	case user.Role != rc.Principal.Role:
		return g.deny(ctx, rc, securityevent.RoleMismatch,
			map[string]any{"token_role": string(rc.Principal.Role), "stored_role": string(user.Role)},
			apperror.NewUnauthorized("session is no longer valid, please sign in again"))
	}

	rc.Principal = &appctx.Principal{ID: user.ID, Email: user.Email, Role: user.Role}
	g.record(ctx, rc, securityevent.UserContextValidated, nil)
	return nil
}

// PermissionOptions tune RequirePermission.
type PermissionOptions struct {
	// AllowSelfAccess lets a caller through when the userId or id route
	// parameter is their own id.
	AllowSelfAccess bool
	// LogAccess marks the route as sensitive: grants are recorded as
	// SENSITIVE_ACCESS_GRANTED.
	LogAccess  bool
	EntityType string
}

// RequirePermission allows the request when the caller's role grants p.
func (g *Gate) RequirePermission(ctx context.Context, rc *appctx.RequestContext, p security.Permission, opts PermissionOptions) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	perms, err := g.permissionsFor(ctx, rc, "require_permission")
	if err != nil {
		return err
	}

	details := map[string]any{
		"required_permission": p.Key(),
		"user_role":           string(rc.Role()),
	}
	if opts.EntityType != "" {
		details["entity_type"] = opts.EntityType
	}

	if perms.Has(p) {
		eventType := securityevent.PermissionGranted
		if opts.LogAccess {
			eventType = securityevent.SensitiveAccessGranted
		}
		g.record(ctx, rc, eventType, details)
		return nil
	}

	if opts.AllowSelfAccess && isSelf(rc) {
		g.record(ctx, rc, securityevent.SelfAccessGranted, details)
		return nil
	}

	return g.deny(ctx, rc, securityevent.PermissionDenied, details,
		apperror.NewForbidden("insufficient permissions: "+p.Key()+" required").
			WithDetail("required_permission", p.Key()).
			WithDetail("user_role", string(rc.Role())))
}

func isSelf(rc *appctx.RequestContext) bool {
	for _, name := range []string{"userId", "id"} {
		if v := rc.Param(name); v != "" {
			target, err := id.Parse(v)
			return err == nil && target == rc.Principal.ID
		}
	}
	return false
}

// RequireRole allows the request when the caller holds one of roles.
func (g *Gate) RequireRole(ctx context.Context, rc *appctx.RequestContext, roles ...security.Role) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	current := rc.Role()
	details := map[string]any{
		"required": roleNames(roles),
		"current":  []string{string(current)},
	}
	for _, r := range roles {
		if r == current {
			g.record(ctx, rc, securityevent.RoleAccessGranted, details)
			return nil
		}
	}

	return g.deny(ctx, rc, securityevent.RoleAccessDenied, details,
		apperror.NewForbidden("insufficient role").
			WithDetail("required", roleNames(roles)).
			WithDetail("current", []string{string(current)}))
}

// RequireRoleGroup is RequireRole over a named group.
func (g *Gate) RequireRoleGroup(ctx context.Context, rc *appctx.RequestContext, group security.RoleGroup) error {
	return g.RequireRole(ctx, rc, group.Roles...)
}

var writePermissions = map[string]security.Permission{
	http.MethodPost:   security.CanCreate,
	http.MethodPut:    security.CanEdit,
	http.MethodPatch:  security.CanEdit,
	http.MethodDelete: security.CanDelete,
}

// EnforceReadOnly maps a write method to the capability it needs. Reads
// pass without an event.
func (g *Gate) EnforceReadOnly(ctx context.Context, rc *appctx.RequestContext) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	required, isWrite := writePermissions[strings.ToUpper(rc.Method)]
	if !isWrite {
		return nil
	}

	role := rc.Role()
	segments := resourceSegments(rc.Path)

	if role == security.RoleDataCollector && len(segments) > 0 && segments[0] == "companies" {
		g.record(ctx, rc, securityevent.DataCollectorCompanyAccess, map[string]any{"method": rc.Method})
		return nil
	}
	if security.TaskWorkers.Contains(role) && isEdit(rc.Method) && len(segments) > 1 && segments[0] == "tasks" {
		g.record(ctx, rc, securityevent.TaskWorkerTaskAccess, map[string]any{"method": rc.Method})
		return nil
	}

	perms, err := g.permissionsFor(ctx, rc, "enforce_read_only")
	if err != nil {
		return err
	}

	details := map[string]any{
		"required_permission": required.Key(),
		"user_role":           string(role),
	}
	if perms.Has(required) {
		g.record(ctx, rc, securityevent.WriteAccessGranted, details)
		return nil
	}

	return g.deny(ctx, rc, securityevent.ReadOnlyViolation, details,
		apperror.NewForbidden("your role has read-only access for this operation").
			WithDetail("required_permission", required.Key()).
			WithDetail("user_role", string(role)))
}

var versionSegment = regexp.MustCompile(`^v[0-9]+$`)

func isEdit(method string) bool {
	m := strings.ToUpper(method)
	return m == http.MethodPut || m == http.MethodPatch
}

// resourceSegments splits a request path and drops a leading /api/vN prefix,
// so "/api/v1/companies/x" yields ["companies", "x"].
func resourceSegments(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) > 1 && segments[0] == "api" && versionSegment.MatchString(segments[1]) {
		segments = segments[2:]
	}
	return segments
}

// EnforceTaskUpdatePermission allows blanket task updaters outright. Callers
// who may only update their own tasks pass with MustBeAssignedUser set; the
// task operation checks the row.
func (g *Gate) EnforceTaskUpdatePermission(ctx context.Context, rc *appctx.RequestContext) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	perms, err := g.permissionsFor(ctx, rc, "enforce_task_update")
	if err != nil {
		return err
	}

	details := map[string]any{"user_role": string(rc.Role())}
	switch {
	case perms.CanUpdateAllTasks:
		rc.MustBeAssignedUser = false
		g.record(ctx, rc, securityevent.TaskUpdateAdminAccess, details)
		return nil
	case perms.CanUpdateOwnTasks:
		rc.MustBeAssignedUser = true
		g.record(ctx, rc, securityevent.TaskUpdateOwnAccess, details)
		return nil
	}

	details["required_permission"] = security.CanUpdateOwnTasks.Key()
	return g.deny(ctx, rc, securityevent.TaskUpdateDenied, details,
		apperror.NewForbidden("insufficient permissions to update tasks").
			WithDetail("required_permission", security.CanUpdateOwnTasks.Key()).
			WithDetail("user_role", string(rc.Role())))
}
