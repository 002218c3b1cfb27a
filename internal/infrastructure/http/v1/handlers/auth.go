package handlers

import (
	"github.com/gin-gonic/gin"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// AuthHandler handles authentication and account endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), req.ToCredentials())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LoginResponse{Token: token, User: dto.FromUser(user)})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	uid, ok := h.UserID(c)
	if !ok {
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), uid)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// GetUser handles GET /users/:id
func (h *AuthHandler) GetUser(c *gin.Context) {
	userID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// ChangeRole handles PUT /users/:id/role
func (h *AuthHandler) ChangeRole(c *gin.Context) {
	actorID, ok := h.UserID(c)
	if !ok {
		return
	}
	userID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.ChangeRoleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	role, valid := security.ParseRole(req.Role)
	if !valid {
		h.Error(c, apperror.NewFieldValidation("role", "unknown role"))
		return
	}

	user, err := h.service.ChangeRole(c.Request.Context(), actorID, userID, role)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// SetActive handles PUT /users/:id/active
func (h *AuthHandler) SetActive(c *gin.Context) {
	actorID, ok := h.UserID(c)
	if !ok {
		return
	}
	userID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	user, err := h.service.SetActive(c.Request.Context(), actorID, userID, *req.Active)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}
