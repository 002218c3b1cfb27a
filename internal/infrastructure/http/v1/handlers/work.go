package handlers

import (
	"github.com/gin-gonic/gin"

	appctx "crmflow/internal/core/context"
	"crmflow/internal/domain/task"
	"crmflow/internal/domain/ticket"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// WorkHandler serves tasks and tickets.
type WorkHandler struct {
	*BaseHandler
	tasks   *task.Service
	tickets *ticket.Service
}

// NewWorkHandler creates a task/ticket handler.
func NewWorkHandler(base *BaseHandler, tasks *task.Service, tickets *ticket.Service) *WorkHandler {
	return &WorkHandler{BaseHandler: base, tasks: tasks, tickets: tickets}
}

// GetTask handles GET /tasks/:id
func (h *WorkHandler) GetTask(c *gin.Context) {
	taskID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	t, err := h.tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// UpdateTaskStatus handles PATCH /tasks/:id/status. The task-update guard
// decides whether the caller is restricted to tasks assigned to them.
func (h *WorkHandler) UpdateTaskStatus(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	taskID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateTaskStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	mustBeAssigned := false
	if rc := appctx.GetRequest(c.Request.Context()); rc != nil {
		mustBeAssigned = rc.MustBeAssignedUser
	}

	t, err := h.tasks.UpdateStatus(c.Request.Context(), taskID, userID, mustBeAssigned, task.Status(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// GetTicket handles GET /tickets/:id
func (h *WorkHandler) GetTicket(c *gin.Context) {
	ticketID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	t, err := h.tickets.Get(c.Request.Context(), ticketID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}
