package access

import (
	"context"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/cache"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/domain/securityevent"
	"crmflow/pkg/logger"
)

// subjectKey identifies the caller for counters: user id when known, else ip.
func subjectKey(rc *appctx.RequestContext) string {
	if rc == nil {
		return "anonymous"
	}
	if rc.Principal != nil {
		return "user:" + rc.Principal.ID.String()
	}
	if rc.IPAddress != "" {
		return "ip:" + rc.IPAddress
	}
	return "anonymous"
}

// SuspiciousActivityTracker counts denials per caller in a fixed window.
// Counters are best-effort; cache failures are logged and ignored.
type SuspiciousActivityTracker struct {
	cache     cache.Cache
	events    securityevent.Recorder
	window    time.Duration
	threshold int64
}

// NewSuspiciousActivityTracker creates a tracker flagging callers with
// threshold denials within window.
func NewSuspiciousActivityTracker(c cache.Cache, events securityevent.Recorder, window time.Duration, threshold int) *SuspiciousActivityTracker {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if threshold <= 0 {
		threshold = 10
	}
	return &SuspiciousActivityTracker{cache: c, events: events, window: window, threshold: int64(threshold)}
}

// Observe counts one denial. The event fires once, when the count reaches
// the threshold.
func (t *SuspiciousActivityTracker) Observe(ctx context.Context, rc *appctx.RequestContext) {
	n, err := t.cache.Incr(ctx, "suspicious:"+subjectKey(rc), t.window)
	if err != nil {
		logger.Warn(ctx, "suspicious activity counter unavailable", "error", err)
		return
	}
	if n != t.threshold {
		return
	}

	t.events.Record(ctx, securityevent.SuspiciousActivityDetected, rc.UserID(), rc,
		securityevent.SeverityCritical, map[string]any{
			"denials": n,
			"window":  t.window.String(),
		})
}

// RateLimiter caps requests per caller per window.
type RateLimiter struct {
	cache  cache.Cache
	events securityevent.Recorder
	window time.Duration
	limit  int64
}

// NewRateLimiter allows limit requests per window.
func NewRateLimiter(c cache.Cache, events securityevent.Recorder, window time.Duration, limit int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 300
	}
	return &RateLimiter{cache: c, events: events, window: window, limit: int64(limit)}
}

// Allow counts the request and fails with RATE_LIMITED over the limit. The
// first rejected request of a window is recorded. The limiter fails open.
func (l *RateLimiter) Allow(ctx context.Context, rc *appctx.RequestContext) error {
	n, err := l.cache.Incr(ctx, "ratelimit:"+subjectKey(rc), l.window)
	if err != nil {
		logger.Warn(ctx, "rate limit counter unavailable", "error", err)
		return nil
	}
	if n <= l.limit {
		return nil
	}

	if n == l.limit+1 {
		l.events.Record(ctx, securityevent.RateLimitExceeded, rc.UserID(), rc,
			securityevent.SeverityOf(securityevent.RateLimitExceeded), map[string]any{
				"limit":  l.limit,
				"window": l.window.String(),
			})
	}
	return apperror.NewRateLimited(int(l.limit))
}
