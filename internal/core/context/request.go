// Package context provides request-scoped values: the authenticated principal
// and the explicit request context threaded through the guard chain.
package context

import (
	"context"

	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
)

// Principal is the authenticated caller as attached by the authentication layer.
type Principal struct {
	ID    id.ID
	Email string
	Role  security.Role
}

// RequestContext carries everything a guard needs to decide: the principal,
// request metadata and flags set by earlier guards for downstream checks.
type RequestContext struct {
	Principal *Principal

	Method      string
	Path        string
	OriginalURL string
	IPAddress   string
	UserAgent   string

	// Params holds route parameters (e.g. "id", "userId").
	Params map[string]string

	// BulkIDs holds the ids of a bulk request body, when present.
	BulkIDs []string

	// MustBeAssignedUser is set when the caller may only act on rows assigned to them.
	MustBeAssignedUser bool
}

// Param returns a route parameter or "".
func (rc *RequestContext) Param(name string) string {
	if rc == nil || rc.Params == nil {
		return ""
	}
	return rc.Params[name]
}

// UserID returns the principal id, or nil when unauthenticated.
func (rc *RequestContext) UserID() *id.ID {
	if rc == nil || rc.Principal == nil {
		return nil
	}
	uid := rc.Principal.ID
	return &uid
}

// Role returns the principal role, or "" when unauthenticated.
func (rc *RequestContext) Role() security.Role {
	if rc == nil || rc.Principal == nil {
		return ""
	}
	return rc.Principal.Role
}

type requestContextKey struct{}

// WithRequest adds RequestContext to context.
func WithRequest(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// GetRequest returns RequestContext from context.
func GetRequest(ctx context.Context) *RequestContext {
	if v, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return v
	}
	return nil
}

// GetPrincipal returns the principal attached to the request, if any.
func GetPrincipal(ctx context.Context) *Principal {
	if rc := GetRequest(ctx); rc != nil {
		return rc.Principal
	}
	return nil
}

// GetUserID returns principal ID as string, or empty string.
func GetUserID(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.ID.String()
	}
	return ""
}
