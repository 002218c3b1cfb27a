package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"crmflow/internal/core/id"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
	"crmflow/internal/infrastructure/http/v1/dto"
)

// Inbox reads and acknowledges a user's notifications.
type Inbox interface {
	ListForUser(ctx context.Context, userID id.ID, unreadOnly bool, p domain.Pagination) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID id.ID, ids []id.ID) (int64, error)
}

// NotificationHandler serves the caller's notifications.
type NotificationHandler struct {
	*BaseHandler
	inbox Inbox
}

// NewNotificationHandler creates a notification handler.
func NewNotificationHandler(base *BaseHandler, inbox Inbox) *NotificationHandler {
	return &NotificationHandler{BaseHandler: base, inbox: inbox}
}

type notificationQuery struct {
	dto.PaginationRequest
	Unread bool `form:"unread"`
}

// List handles GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	var q notificationQuery
	if !h.BindQuery(c, &q) {
		return
	}

	items, err := h.inbox.ListForUser(c.Request.Context(), userID, q.Unread, q.ToPagination().Normalize())
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	h.OK(c, items)
}

// MarkRead handles POST /notifications/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	var req dto.MarkReadRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ids, err := id.ParseList("ids", req.IDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	n, err := h.inbox.MarkRead(c.Request.Context(), userID, ids)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"updated": n})
}
