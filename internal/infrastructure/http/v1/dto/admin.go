package dto

import (
	"time"

	"crmflow/internal/core/id"
	"crmflow/internal/domain/securityevent"
)

// SecurityEventQuery filters GET /security-events.
type SecurityEventQuery struct {
	EventType string     `form:"event_type"`
	UserID    string     `form:"user_id"`
	Severity  string     `form:"severity"`
	Since     *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit"`
	Offset    int        `form:"offset"`
}

// ToFilter converts to the domain filter.
func (q *SecurityEventQuery) ToFilter() (securityevent.ListFilter, error) {
	f := securityevent.ListFilter{
		EventType: securityevent.EventType(q.EventType),
		Severity:  securityevent.Severity(q.Severity),
		Since:     q.Since,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.UserID != "" {
		uid, err := id.ParseParam("user_id", q.UserID)
		if err != nil {
			return f, err
		}
		f.UserID = &uid
	}
	return f, nil
}

// SecurityEventList is the GET /security-events response.
type SecurityEventList struct {
	Items      []securityevent.Event `json:"items"`
	TotalCount int                   `json:"totalCount"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}

// RolePermissionRequest is the PUT /admin/role-permissions body. A nil
// Allowed clears the override.
type RolePermissionRequest struct {
	Role       string `json:"role" binding:"required"`
	Permission string `json:"permission" binding:"required"`
	Allowed    *bool  `json:"allowed"`
}

// MarkReadRequest is the POST /notifications/read body.
type MarkReadRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}
