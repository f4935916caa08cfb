// Package metrics defines the Prometheus collectors of the budget server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "budget"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TenantHandlesOpen prometheus.Gauge
	TenantOpensTotal  *prometheus.CounterVec
	SchemaInitsTotal  *prometheus.CounterVec
	SchemaInitSeconds prometheus.Histogram
	TenantEvictions   *prometheus.CounterVec

	StoreOpsTotal    *prometheus.CounterVec
	SuggestionsTotal *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	AuthCacheTotal   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TenantHandlesOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "handles_open",
			Help:      "Number of tenant databases currently open.",
		}),
		TenantOpensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "opens_total",
			Help:      "Tenant database opens by result.",
		}, []string{"result"}), // result: ok, storage_unavailable, schema_error
		SchemaInitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "schema_inits_total",
			Help:      "Schema initializer runs by result.",
		}, []string{"result"}),
		SchemaInitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "schema_init_seconds",
			Help:      "Duration of schema initializer runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		TenantEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "evictions_total",
			Help:      "Tenant handles closed by reason.",
		}, []string{"reason"}), // reason: idle, capacity, removed
		StoreOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Record and category store operations by outcome.",
		}, []string{"operation", "result"}),
		SuggestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "requests_total",
			Help:      "Suggestion requests by result.",
		}, []string{"result"}), // result: ok, empty, unavailable
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Record events by publish result.",
		}, []string{"type", "result"}),
		AuthCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_cache_total",
			Help:      "Session user lookups by cache result.",
		}, []string{"result"}), // result: hit, miss
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) HandleOpened(result string) {
	if m == nil {
		return
	}
	m.TenantOpensTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.TenantHandlesOpen.Inc()
	}
}

func (m *Metrics) HandleClosed(reason string) {
	if m == nil {
		return
	}
	m.TenantHandlesOpen.Dec()
	m.TenantEvictions.WithLabelValues(reason).Inc()
}

func (m *Metrics) SchemaInit(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SchemaInitsTotal.WithLabelValues(result).Inc()
	m.SchemaInitSeconds.Observe(d.Seconds())
}

func (m *Metrics) StoreOp(operation, result string) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Suggestion(result string) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Event(eventType, result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) AuthCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AuthCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
