package securityevent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/pkg/logger"
)

// Recorder accepts security events. Record never fails and never blocks on storage.
type Recorder interface {
	Record(
		ctx context.Context,
		eventType EventType,
		userID *id.ID,
		rc *appctx.RequestContext,
		severity Severity,
		details map[string]any,
	)
}

// Observer is notified of every accepted event (metrics).
type Observer interface {
	EventRecorded(eventType EventType, severity Severity)
}

const defaultWriteTimeout = 5 * time.Second

// AsyncRecorder writes events from a background goroutine. Write failures
// are logged locally and otherwise dropped.
type AsyncRecorder struct {
	repo     Repository
	timeout  time.Duration
	observer Observer
	now      func() time.Time

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures AsyncRecorder.
type Option func(*AsyncRecorder)

// WithWriteTimeout bounds each insert.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *AsyncRecorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(r *AsyncRecorder) { r.observer = o }
}

// NewAsyncRecorder creates a recorder over repo.
func NewAsyncRecorder(repo Repository, opts ...Option) *AsyncRecorder {
	r := &AsyncRecorder{
		repo:    repo,
		timeout: defaultWriteTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder.
func (r *AsyncRecorder) Record(
	ctx context.Context,
	eventType EventType,
	userID *id.ID,
	rc *appctx.RequestContext,
	severity Severity,
	details map[string]any,
) {
	ev := NewEvent(eventType, userID, rc, severity, details, r.now())
	logEvent(ctx, ev)

	if r.observer != nil {
		r.observer.EventRecorded(ev.EventType, ev.Severity)
	}

	if r.closed.Load() {
		logger.Warn(ctx, "security event dropped after shutdown", "event_type", ev.EventType)
		return
	}

	// the request may finish (and cancel ctx) before the insert runs
	writeCtx := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error(writeCtx, "panic while recording security event", "event_type", ev.EventType, "panic", p)
			}
		}()

		c, cancel := context.WithTimeout(writeCtx, r.timeout)
		defer cancel()

		if err := r.repo.Insert(c, ev); err != nil {
			logger.Error(writeCtx, "failed to record security event",
				"event_type", ev.EventType,
				"severity", ev.Severity,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all pending writes finish.
func (r *AsyncRecorder) Wait() {
	r.wg.Wait()
}

// Close stops accepting writes and waits for pending ones until ctx is done.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.closed.Store(true)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logEvent(ctx context.Context, ev *Event) {
	kv := []any{"event_type", ev.EventType, "severity", ev.Severity}
	if ev.UserID != nil {
		kv = append(kv, "subject_id", ev.UserID.String())
	}

	switch ev.Severity {
	case SeverityLow:
		logger.Debug(ctx, "security event", kv...)
	case SeverityMedium:
		logger.Warn(ctx, "security event", kv...)
	default:
		logger.Error(ctx, "security event", kv...)
	}
}

var _ Recorder = (*AsyncRecorder)(nil)
