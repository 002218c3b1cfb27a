package securityevent

import (
	"context"
	"sync"
	"time"

	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
)

// Capture is a synchronous in-memory Recorder. Used in tests.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// NewCapture creates an empty Capture.
func NewCapture() *Capture {
	return &Capture{}
}

// Record implements Recorder.
func (c *Capture) Record(
	_ context.Context,
	eventType EventType,
	userID *id.ID,
	rc *appctx.RequestContext,
	severity Severity,
	details map[string]any,
) {
	ev := NewEvent(eventType, userID, rc, severity, details, time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *ev)
}

// Events returns a copy of everything recorded so far.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the recorded event types in order.
func (c *Capture) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.EventType)
	}
	return out
}

// Last returns the most recent event, or false when none was recorded.
func (c *Capture) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}

// Reset drops all recorded events.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

var _ Recorder = (*Capture)(nil)
