package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/domain/company"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// CompanyHandler serves the finalization workflow.
type CompanyHandler struct {
	*BaseHandler
	service *company.Service
}

// NewCompanyHandler creates a company handler.
func NewCompanyHandler(base *BaseHandler, service *company.Service) *CompanyHandler {
	return &CompanyHandler{BaseHandler: base, service: service}
}

// Get handles GET /companies/:id
func (h *CompanyHandler) Get(c *gin.Context) {
	companyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	co, err := h.service.Get(c.Request.Context(), companyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, co)
}

// Update handles PUT /companies/:id
func (h *CompanyHandler) Update(c *gin.Context) {
	companyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateCompanyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	co, err := h.service.UpdateConversionStatus(c.Request.Context(), companyID, company.ConversionStatus(req.ConversionStatus))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, co)
}

type transitionFunc func(s *company.Service, ctx context.Context, companyID, actingUserID id.ID) (*company.Company, error)

// Finalize handles POST /companies/:id/finalize
func (h *CompanyHandler) Finalize(c *gin.Context) {
	h.transition(c, (*company.Service).Finalize)
}

// Unfinalize handles POST /companies/:id/unfinalize
func (h *CompanyHandler) Unfinalize(c *gin.Context) {
	h.transition(c, (*company.Service).Unfinalize)
}

// Submit handles POST /companies/:id/submit
func (h *CompanyHandler) Submit(c *gin.Context) {
	h.transition(c, (*company.Service).SubmitForApproval)
}

func (h *CompanyHandler) transition(c *gin.Context, fn transitionFunc) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	companyID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	co, err := fn(h.service, c.Request.Context(), companyID, userID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, co)
}

type bulkFunc func(s *company.Service, ctx context.Context, ids []id.ID, actingUserID id.ID) (int, error)

// BulkApprove handles POST /companies/bulk-approve
func (h *CompanyHandler) BulkApprove(c *gin.Context) {
	h.bulk(c, (*company.Service).BulkApprove)
}

// BulkReject handles POST /companies/bulk-reject
func (h *CompanyHandler) BulkReject(c *gin.Context) {
	h.bulk(c, (*company.Service).BulkReject)
}

// BulkDelete handles DELETE /companies/bulk
func (h *CompanyHandler) BulkDelete(c *gin.Context) {
	h.bulk(c, (*company.Service).BulkDelete)
}

func (h *CompanyHandler) bulk(c *gin.Context, fn bulkFunc) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	var req dto.BulkRequest
	if !h.BindBody(c, &req) {
		return
	}
	ids, err := req.ParseIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	n, err := fn(h.service, c.Request.Context(), ids, userID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(200, dto.BulkResponse{Success: true, Requested: len(ids), Updated: n})
}

// ApprovalQueue handles GET /companies/approval-queue
func (h *CompanyHandler) ApprovalQueue(c *gin.Context) {
	p := appctx.GetPrincipal(c.Request.Context())
	if p == nil {
		_, _ = h.UserID(c)
		return
	}

	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}

	result, err := h.service.ApprovalQueue(c.Request.Context(), p.Role, p.ID, page.ToPagination())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
