package access

import (
	"context"
	"net/http"
	"strings"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
)

// DefaultBulkMaxItems bounds bulk requests when no limit is configured.
const DefaultBulkMaxItems = 100

// EnforceBulkOperationLimits requires canBulkDelete for DELETE and caps the
// number of ids on every bulk request.
func (g *Gate) EnforceBulkOperationLimits(ctx context.Context, rc *appctx.RequestContext, maxItems int) error {
	if err := g.requirePrincipal(ctx, rc); err != nil {
		return err
	}
	if maxItems <= 0 {
		maxItems = DefaultBulkMaxItems
	}

	if strings.ToUpper(rc.Method) == http.MethodDelete {
		perms, err := g.permissionsFor(ctx, rc, "enforce_bulk_limits")
		if err != nil {
			return err
		}
		if !perms.CanBulkDelete {
			details := map[string]any{
				"required_permission": security.CanBulkDelete.Key(),
				"user_role":           string(rc.Role()),
			}
			return g.deny(ctx, rc, securityevent.BulkDeleteDenied, details,
				apperror.NewForbidden("insufficient permissions for bulk delete").
					WithDetail("required_permission", security.CanBulkDelete.Key()).
					WithDetail("user_role", string(rc.Role())))
		}
	}

	requested := len(rc.BulkIDs)
	details := map[string]any{"requested": requested, "maximum": maxItems}
	if requested > maxItems {
		return g.deny(ctx, rc, securityevent.BulkLimitExceeded, details,
			apperror.NewBulkLimitExceeded(requested, maxItems))
	}

	g.record(ctx, rc, securityevent.BulkOperationAllowed, details)
	return nil
}
