package handlers

import (
	"github.com/gin-gonic/gin"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/access"
	"crmflow/internal/domain/securityevent"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// AdminHandler serves the security log and role permission overrides.
type AdminHandler struct {
	*BaseHandler
	events      *securityevent.Service
	permissions *access.PermissionSource
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(base *BaseHandler, events *securityevent.Service, permissions *access.PermissionSource) *AdminHandler {
	return &AdminHandler{BaseHandler: base, events: events, permissions: permissions}
}

// SecurityEvents handles GET /admin/security-events
func (h *AdminHandler) SecurityEvents(c *gin.Context) {
	var q dto.SecurityEventQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.Normalize()

	items, total, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []securityevent.Event{}
	}
	h.OK(c, dto.SecurityEventList{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// PermissionMatrix handles GET /admin/role-permissions
func (h *AdminHandler) PermissionMatrix(c *gin.Context) {
	matrix, err := h.permissions.Matrix(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make(map[string][]string, len(matrix))
	for role, rp := range matrix {
		out[string(role)] = rp.Granted()
	}
	h.OK(c, out)
}

// SetRolePermission handles PUT /admin/role-permissions
func (h *AdminHandler) SetRolePermission(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	var req dto.RolePermissionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	role, ok := security.ParseRole(req.Role)
	if !ok {
		h.Error(c, apperror.NewFieldValidation("role", "unknown role").WithDetail("value", req.Role))
		return
	}
	perm, ok := security.ParsePermission(req.Permission)
	if !ok {
		h.Error(c, apperror.NewFieldValidation("permission", "unknown permission").WithDetail("value", req.Permission))
		return
	}

	ctx := c.Request.Context()
	if req.Allowed == nil {
		err := h.permissions.ClearOverride(ctx, userID, role, perm)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.Success(c, "permission override cleared")
		return
	}

	if err := h.permissions.SetOverride(ctx, userID, role, perm, *req.Allowed); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "permission override saved")
}
