package access

import (
	"context"
	"fmt"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
)

// ResourceType names a row kind with an ownership column.
type ResourceType string

const (
	ResourceTask    ResourceType = "task"
	ResourceTicket  ResourceType = "ticket"
	ResourceCompany ResourceType = "company"
)

type resourceSchema struct {
	table        string
	raiserColumn string
	ownerColumns []string // first entry is the default
}

var resourceSchemas = map[ResourceType]resourceSchema{
	ResourceTask: {
		table:        "tasks",
		raiserColumn: "raised_by_id",
		ownerColumns: []string{"assigned_to_id"},
	},
	ResourceTicket: {
		table:        "tickets",
		raiserColumn: "raised_by_id",
		ownerColumns: []string{"assigned_to_id"},
	},
	ResourceCompany: {
		table:        "companies",
		ownerColumns: []string{"assigned_data_collector_id", "assigned_converter_id"},
	},
}

// OwnershipTarget is a resolved, whitelisted lookup. Column names come only
// from the whitelist and are safe to place in SQL.
type OwnershipTarget struct {
	Table        string
	OwnerColumn  string
	RaiserColumn string // empty when the table has none
}

// ResolveOwnership validates field against the whitelist for rt. An empty
// field selects the default owner column.
func ResolveOwnership(rt ResourceType, field string) (OwnershipTarget, error) {
	schema, ok := resourceSchemas[rt]
	if !ok {
		return OwnershipTarget{}, fmt.Errorf("unknown resource type %q", rt)
	}

	column := schema.ownerColumns[0]
	if field != "" {
		column = ""
		for _, c := range schema.ownerColumns {
			if c == field {
				column = c
				break
			}
		}
		if column == "" {
			return OwnershipTarget{}, fmt.Errorf("column %q is not an ownership column of %s", field, rt)
		}
	}

	return OwnershipTarget{Table: schema.table, OwnerColumn: column, RaiserColumn: schema.raiserColumn}, nil
}

// Ownership holds the people attached to one row.
type Ownership struct {
	OwnerID    *id.ID `db:"owner_id"`
	RaisedByID *id.ID `db:"raised_by_id"`
}

// OwnershipLookup loads the ownership columns of a row. A missing row is
// reported as an apperror NotFound.
type OwnershipLookup interface {
	Ownership(ctx context.Context, target OwnershipTarget, resourceID id.ID) (Ownership, error)
}

// OwnershipOptions tune EnforceResourceOwnership.
type OwnershipOptions struct {
	AllowManagers   bool
	AssignedToField string
	// Param names the route parameter with the row id; defaults to "id".
	Param string
}

// EnforceResourceOwnership allows the owner or raiser of a row, and managers
// when opts.AllowManagers is set. A missing row is 404, somebody else's row 403.
func (g *Gate) EnforceResourceOwnership(ctx context.Context, rc *appctx.RequestContext, rt ResourceType, opts OwnershipOptions) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	target, err := ResolveOwnership(rt, opts.AssignedToField)
	if err != nil {
		return g.deny(ctx, rc, securityevent.OwnershipCheckError,
			map[string]any{"resource_type": string(rt), "error": err.Error()},
			apperror.NewInternal(err))
	}

	param := opts.Param
	if param == "" {
		param = "id"
	}
	raw := rc.Param(param)
	details := map[string]any{"resource_type": string(rt), "resource_id": raw}

	resourceID, err := id.Parse(raw)
	if err != nil {
		return g.deny(ctx, rc, securityevent.ResourceNotFound, details,
			apperror.NewNotFoundMessage(string(rt)+" not found"))
	}

	owner, err := g.ownership.Ownership(ctx, target, resourceID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return g.deny(ctx, rc, securityevent.ResourceNotFound, details,
				apperror.NewNotFoundMessage(string(rt)+" not found"))
		}
		details["error"] = err.Error()
		return g.deny(ctx, rc, securityevent.OwnershipCheckError, details, apperror.NewInternal(err))
	}

	caller := rc.Principal.ID
	if id.Equal(owner.OwnerID, caller) || id.Equal(owner.RaisedByID, caller) {
		g.record(ctx, rc, securityevent.ResourceOwnerAccess, details)
		return nil
	}

	if opts.AllowManagers {
		if security.Managers.Contains(rc.Role()) {
			g.record(ctx, rc, securityevent.ResourceManagerAccess, details)
			return nil
		}
		perms, err := g.permissionsFor(ctx, rc, "enforce_resource_ownership")
		if err != nil {
			return err
		}
		if perms.CanUpdateAllTasks {
			g.record(ctx, rc, securityevent.ResourceManagerAccess, details)
			return nil
		}
	}

	details["owner_column"] = target.OwnerColumn
	return g.deny(ctx, rc, securityevent.ResourceOwnershipViolation, details,
		apperror.NewForbidden("you can only access your own "+string(rt)+" records").
			WithDetail("resource_type", string(rt)))
}
