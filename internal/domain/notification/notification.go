// Package notification delivers user notifications produced by workflows.
// Delivery is best-effort: failures are logged and never reach the caller.
package notification

import (
	"context"
	"time"

	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/pkg/logger"
)

// Type is the presentation category of a notification.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is one notifications row.
type Notification struct {
	ID         id.ID     `db:"id" json:"id"`
	UserID     id.ID     `db:"user_id" json:"user_id"`
	Message    string    `db:"message" json:"message"`
	Type       Type      `db:"type" json:"type"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *id.ID    `db:"entity_id" json:"entity_id,omitempty"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Sink stores or delivers a single notification.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// UserDirectory resolves notification recipients.
type UserDirectory interface {
	ActiveUserIDsByRoles(ctx context.Context, roles []security.Role) ([]id.ID, error)
}

// Dispatcher wraps a Sink with best-effort semantics.
type Dispatcher struct {
	sink      Sink
	directory UserDirectory
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. directory may be nil when group
// notifications are not used.
func NewDispatcher(sink Sink, directory UserDirectory) *Dispatcher {
	return &Dispatcher{sink: sink, directory: directory, now: time.Now}
}

// Send delivers n, logging on failure. It reports whether delivery succeeded.
func (d *Dispatcher) Send(ctx context.Context, n Notification) bool {
	if d == nil || d.sink == nil {
		return false
	}
	if id.IsNil(n.ID) {
		n.ID = id.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}

	if err := d.sink.Notify(ctx, n); err != nil {
		logger.Warn(ctx, "notification delivery failed",
			"recipient_id", n.UserID,
			"entity_type", n.EntityType,
			"error", err,
		)
		return false
	}
	return true
}

// SendMany delivers to each recipient independently; one failure does not
// stop the rest. Returns the number delivered.
func (d *Dispatcher) SendMany(ctx context.Context, recipients []id.ID, template Notification) int {
	delivered := 0
	seen := make(map[id.ID]struct{}, len(recipients))
	for _, uid := range recipients {
		if id.IsNil(uid) {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}

		n := template
		n.ID = id.ID{}
		n.UserID = uid
		if d.Send(ctx, n) {
			delivered++
		}
	}
	return delivered
}

// SendToRoles resolves active users holding any of roles and notifies each.
func (d *Dispatcher) SendToRoles(ctx context.Context, roles []security.Role, template Notification) int {
	if d == nil || d.directory == nil {
		return 0
	}
	recipients, err := d.directory.ActiveUserIDsByRoles(ctx, roles)
	if err != nil {
		logger.Warn(ctx, "failed to resolve notification recipients", "roles", roles, "error", err)
		return 0
	}
	return d.SendMany(ctx, recipients, template)
}
