// Package access implements the permission gate: composable guards that
// decide whether a request may proceed and record every decision as a
// security event.
//
// Guards are framework-free. Each takes the explicit RequestContext built
// by the transport layer and returns nil (allow) or an *apperror.AppError
// (deny). Flags set by a guard for downstream checks live on the
// RequestContext, never on ambient request state.
package access

import (
	"context"
	"time"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
	"crmflow/internal/domain/company"
	"crmflow/internal/domain/securityevent"
)

// PermissionProvider returns the effective permissions of a role at decision time.
type PermissionProvider interface {
	Permissions(ctx context.Context, role security.Role) (security.RolePermissions, error)
}

// UserStore is the authoritative principal storage.
type UserStore interface {
	GetByID(ctx context.Context, userID id.ID) (*auth.User, error)
}

// CompanyLookup loads a company for the finalized-edit guard.
type CompanyLookup interface {
	GetByID(ctx context.Context, companyID id.ID) (*company.Company, error)
}

// Dependencies wires a Gate. Activity may be nil.
type Dependencies struct {
	Permissions PermissionProvider
	Users       UserStore
	Companies   CompanyLookup
	Ownership   OwnershipLookup
	Events      securityevent.Recorder
	Activity    *SuspiciousActivityTracker
}

// Gate holds the guards.
type Gate struct {
	permissions PermissionProvider
	users       UserStore
	companies   CompanyLookup
	ownership   OwnershipLookup
	events      securityevent.Recorder
	activity    *SuspiciousActivityTracker
	now         func() time.Time
}

// NewGate creates a Gate.
func NewGate(deps Dependencies) *Gate {
	return &Gate{
		permissions: deps.Permissions,
		users:       deps.Users,
		companies:   deps.Companies,
		ownership:   deps.Ownership,
		events:      deps.Events,
		activity:    deps.Activity,
		now:         time.Now,
	}
}

// record emits one event with the fixed severity of its type.
func (g *Gate) record(ctx context.Context, rc *appctx.RequestContext, t securityevent.EventType, details map[string]any) {
	g.events.Record(ctx, t, rc.UserID(), rc, securityevent.SeverityOf(t), details)
}

// deny records the decision and returns err. Authorization and
// authentication failures also feed the suspicious-activity counter.
func (g *Gate) deny(
	ctx context.Context,
	rc *appctx.RequestContext,
	t securityevent.EventType,
	details map[string]any,
	err *apperror.AppError,
) error {
	g.record(ctx, rc, t, details)

	switch err.Kind {
	case apperror.KindAuthorization, apperror.KindAuthentication:
		if g.activity != nil {
			g.activity.Observe(ctx, rc)
		}
	}
	return err
}

// requirePrincipal is the common first step of every guard.
func (g *Gate) requirePrincipal(ctx context.Context, rc *appctx.RequestContext) error {
	if rc == nil || rc.Principal == nil {
		return g.deny(ctx, rc, securityevent.AuthenticationRequired, nil,
			apperror.NewUnauthorized("authentication required"))
	}
	return nil
}

// permissionsFor loads the caller's effective permissions, recording a
// check error when the table cannot be read.
func (g *Gate) permissionsFor(ctx context.Context, rc *appctx.RequestContext, guard string) (security.RolePermissions, error) {
	perms, err := g.permissions.Permissions(ctx, rc.Role())
	if err != nil {
		return security.NoPermissions, g.deny(ctx, rc, securityevent.PermissionCheckError,
			map[string]any{"guard": guard, "user_role": string(rc.Role())},
			apperror.NewInternal(err))
	}
	return perms, nil
}

func roleNames(roles []security.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
