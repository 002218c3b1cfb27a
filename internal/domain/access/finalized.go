package access

import (
	"context"
	"net/http"
	"strings"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
)

// PreventFinalizedEdit blocks PUT/PATCH/DELETE on a finalized company unless
// the caller may edit finalized records. companyParam names the route
// parameter carrying the company id. A missing company passes; the handler
// reports the 404.
func (g *Gate) PreventFinalizedEdit(ctx context.Context, rc *appctx.RequestContext, companyParam string) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}

	switch strings.ToUpper(rc.Method) {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil
	}

	perms, err := g.permissionsFor(ctx, rc, "prevent_finalized_edit")
	if err != nil {
		return err
	}
	if perms.Has(security.CanEditFinalized) {
		g.record(ctx, rc, securityevent.FinalizedEditPrivileged, map[string]any{"user_role": string(rc.Role())})
		return nil
	}

	raw := rc.Param(companyParam)
	companyID, parseErr := id.Parse(raw)
	if raw == "" || parseErr != nil {
		g.record(ctx, rc, securityevent.FinalizedCheckPassed, map[string]any{"company_id": raw})
		return nil
	}

	c, err := g.companies.GetByID(ctx, companyID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			g.record(ctx, rc, securityevent.FinalizedCheckPassed, map[string]any{"company_id": raw})
			return nil
		}
		return g.deny(ctx, rc, securityevent.FinalizedCheckError,
			map[string]any{"company_id": raw, "error": err.Error()},
			apperror.NewInternal(err))
	}

	if !c.IsFinalized() {
		g.record(ctx, rc, securityevent.FinalizedCheckPassed, map[string]any{"company_id": raw})
		return nil
	}

	details := map[string]any{
		"company_id":          raw,
		"finalized_at":        c.FinalizedAt,
		"required_permission": security.CanEditFinalized.Key(),
		"user_role":           string(rc.Role()),
	}
	return g.deny(ctx, rc, securityevent.FinalizedEditBlocked, details,
		apperror.NewForbidden("company is finalized and can no longer be modified").
			WithDetail("finalized_at", c.FinalizedAt).
			WithDetail("required_permission", security.CanEditFinalized.Key()))
}
