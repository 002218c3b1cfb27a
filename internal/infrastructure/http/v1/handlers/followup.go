package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmflow/internal/core/id"
	"crmflow/internal/domain/followup"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// FollowUpHandler serves follow-ups and their deletion requests.
type FollowUpHandler struct {
	*BaseHandler
	service *followup.Service
}

// NewFollowUpHandler creates a follow-up handler.
func NewFollowUpHandler(base *BaseHandler, service *followup.Service) *FollowUpHandler {
	return &FollowUpHandler{BaseHandler: base, service: service}
}

// ListByCompany handles GET /companies/:id/follow-ups
func (h *FollowUpHandler) ListByCompany(c *gin.Context) {
	companyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	items, err := h.service.ListByCompany(c.Request.Context(), companyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, items)
}

// Create handles POST /companies/:id/follow-ups
func (h *FollowUpHandler) Create(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	companyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.CreateFollowUpRequest
	if !h.BindJSON(c, &req) {
		return
	}

	f, err := h.service.Create(c.Request.Context(), req.ToInput(companyID, id.Ptr(userID)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, f)
}

// Update handles PATCH /follow-ups/:id
func (h *FollowUpHandler) Update(c *gin.Context) {
	followUpID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateFollowUpRequest
	if !h.BindJSON(c, &req) {
		return
	}

	f, err := h.service.Update(c.Request.Context(), followUpID, req.ToPatch())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, f)
}

// Delete handles DELETE /follow-ups/:id (privileged direct delete)
func (h *FollowUpHandler) Delete(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	followUpID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteDirect(c.Request.Context(), followUpID, userID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ProposeDeletion handles POST /follow-ups/:id/deletion-requests
func (h *FollowUpHandler) ProposeDeletion(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	followUpID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.DeletionRequestBody
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	r, err := h.service.ProposeDeletion(c.Request.Context(), followUpID, userID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// ListDeletionRequests handles GET /deletion-requests (the caller's own).
func (h *FollowUpHandler) ListDeletionRequests(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}

	result, err := h.service.ListByRequester(c.Request.Context(), userID, page.ToPagination())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// PendingDeletionRequests handles GET /deletion-requests/pending
func (h *FollowUpHandler) PendingDeletionRequests(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}

	result, err := h.service.ListPending(c.Request.Context(), page.ToPagination())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Review handles POST /deletion-requests/:id/review
func (h *FollowUpHandler) Review(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	requestID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	action, err := followup.ParseReviewAction(req.Action)
	if err != nil {
		h.Error(c, err)
		return
	}

	r, err := h.service.Review(c.Request.Context(), requestID, userID, action, req.RejectionReason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Cancel handles DELETE /deletion-requests/:id
func (h *FollowUpHandler) Cancel(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	requestID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), requestID, userID); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "deletion request cancelled"})
}
