package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zoneauth"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SignIns       *prometheus.CounterVec   // outcome: created, linked, returning, rejected, error
	Refreshes     *prometheus.CounterVec   // outcome: ok, degraded
	GateDecisions *prometheus.CounterVec   // zone, decision: allow, login, redirect
	ProxyRequests *prometheus.CounterVec   // zone, code
	ProxyDuration *prometheus.HistogramVec // zone
}

// NewMetrics registers collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by outcome",
		}, []string{"outcome"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session refreshes by outcome",
		}, []string{"outcome"}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Access gate decisions by zone",
		}, []string{"zone", "decision"}),
		ProxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Front-door proxied requests by target zone and status code",
		}, []string{"zone", "code"}),
		ProxyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_request_duration_seconds",
			Help:      "Front-door proxy latency by target zone",
			Buckets:   prometheus.DefBuckets,
		}, []string{"zone"}),
	}
}

// TrackAuditDrops exposes the audit queue's drop count.
func (m *Metrics) TrackAuditDrops(dropped func() int64) {
	promauto.With(m.registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_dropped_total",
		Help:      "Audit events dropped because the queue was full",
	}, func() float64 { return float64(dropped()) })
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// nil-safe helpers so components can run without metrics

// SignIn counts a sign-in outcome
func (m *Metrics) SignIn(outcome string) {
	if m != nil {
		m.SignIns.WithLabelValues(outcome).Inc()
	}
}

// Refresh counts a refresh outcome
func (m *Metrics) Refresh(outcome string) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}

// Gate counts an access gate decision
func (m *Metrics) Gate(zone, decision string) {
	if m != nil {
		m.GateDecisions.WithLabelValues(zone, decision).Inc()
	}
}

// Proxy records one proxied request
func (m *Metrics) Proxy(zone, code string, seconds float64) {
	if m != nil {
		m.ProxyRequests.WithLabelValues(zone, code).Inc()
		m.ProxyDuration.WithLabelValues(zone).Observe(seconds)
	}
}
