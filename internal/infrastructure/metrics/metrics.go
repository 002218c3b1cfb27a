// Package metrics exposes Prometheus counters for HTTP traffic, security
// events and workflow transitions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmflow/internal/domain/securityevent"
)

const namespace = "crmflow"

// PoolStatsFunc reports database pool usage for the pool gauges.
type PoolStatsFunc func() (total, acquired, idle int32)

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	securityEvents *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: r,
		httpReqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInfl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served",
		}, []string{"route"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events recorded, by type and severity",
		}, []string{"event_type", "severity"}),
	}

	r.MustRegister(m.httpReqCnt, m.httpDur, m.httpInfl, m.securityEvents)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterPool adds gauges that read pool usage at scrape time.
func (m *Metrics) RegisterPool(stats PoolStatsFunc) {
	gauge := func(name, help string, pick func(total, acquired, idle int32) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}

	m.registry.MustRegister(
		gauge("connections_total", "Open database connections",
			func(total, _, _ int32) int32 { return total }),
		gauge("connections_acquired", "Database connections in use",
			func(_, acquired, _ int32) int32 { return acquired }),
		gauge("connections_idle", "Idle database connections",
			func(_, _, idle int32) int32 { return idle }),
	)
}

// EventRecorded implements securityevent.Observer.
func (m *Metrics) EventRecorded(eventType securityevent.EventType, severity securityevent.Severity) {
	m.securityEvents.WithLabelValues(string(eventType), string(severity)).Inc()
}

// Middleware counts requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()

		c.Next()

		m.httpReqCnt.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ securityevent.Observer = (*Metrics)(nil)
