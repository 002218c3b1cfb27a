// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"crmflow/internal/domain"
)

// --- Pagination ---

// PaginationRequest contains limit/offset paging parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ToPagination converts to the domain type with defaults applied.
func (p PaginationRequest) ToPagination() domain.Pagination {
	return domain.Pagination{Limit: p.Limit, Offset: p.Offset}.Normalize()
}

// --- Generic responses ---

// IDResponse contains created entity ID.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a simple success acknowledgment.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DataResponse wraps a single payload.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// BulkRequest carries the ids of a bulk operation.
type BulkRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// BulkResponse reports how many rows a bulk operation changed.
type BulkResponse struct {
	Success   bool `json:"success"`
	Requested int  `json:"requested"`
	Updated   int  `json:"updated"`
}
