package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/access"
)

// GuardFunc is one access decision over the request context.
type GuardFunc func(ctx context.Context, rc *appctx.RequestContext) error

// Guard adapts a decision to gin. A failing guard aborts the chain with its
// error; the ErrorHandler renders it.
func Guard(fn GuardFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		rc := appctx.GetRequest(ctx)
		if rc == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if err := fn(ctx, rc); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Guards builds gin middleware from a Gate.
type Guards struct {
	gate *access.Gate
}

// NewGuards wraps gate.
func NewGuards(gate *access.Gate) *Guards {
	return &Guards{gate: gate}
}

// Authenticated requires a principal and re-validates it against storage.
func (g *Guards) Authenticated() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		Guard(g.gate.RequireAuthenticated),
		Guard(g.gate.ValidateUserContext),
	}
}

// Permission requires p.
func (g *Guards) Permission(p security.Permission, opts access.PermissionOptions) gin.HandlerFunc {
	return Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
		return g.gate.RequirePermission(ctx, rc, p, opts)
	})
}

// Roles requires one of roles.
func (g *Guards) Roles(roles ...security.Role) gin.HandlerFunc {
	return Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
		return g.gate.RequireRole(ctx, rc, roles...)
	})
}

// RoleGroup requires membership in group.
func (g *Guards) RoleGroup(group security.RoleGroup) gin.HandlerFunc {
	return Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
		return g.gate.RequireRoleGroup(ctx, rc, group)
	})
}

// ReadOnly rejects writes from roles without the matching capability.
func (g *Guards) ReadOnly() gin.HandlerFunc {
	return Guard(g.gate.EnforceReadOnly)
}

// TaskUpdate decides whether the caller updates any task or only their own.
func (g *Guards) TaskUpdate() gin.HandlerFunc {
	return Guard(g.gate.EnforceTaskUpdatePermission)
}

// NotFinalized blocks edits of a finalized company named by param.
func (g *Guards) NotFinalized(param string) gin.HandlerFunc {
	return Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
		return g.gate.PreventFinalizedEdit(ctx, rc, param)
	})
}

// Ownership restricts access to the owner of the addressed row.
func (g *Guards) Ownership(rt access.ResourceType, opts access.OwnershipOptions) gin.HandlerFunc {
	return Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
		return g.gate.EnforceResourceOwnership(ctx, rc, rt, opts)
	})
}

// BulkLimits reads the ids of a bulk body and enforces the batch limits.
// The body stays readable by handlers through ShouldBindBodyWith.
func (g *Guards) BulkLimits(maxItems int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
			c.Abort()
			return
		}
		if rc := appctx.GetRequest(c.Request.Context()); rc != nil {
			rc.BulkIDs = body.IDs
		}

		Guard(func(ctx context.Context, rc *appctx.RequestContext) error {
			return g.gate.EnforceBulkOperationLimits(ctx, rc, maxItems)
		})(c)
	}
}

// RateLimit applies limiter per caller.
func RateLimit(limiter *access.RateLimiter) gin.HandlerFunc {
	return Guard(limiter.Allow)
}
