// Package metrics exposes Prometheus collectors for the sync engine.
//
// All methods are safe to call on a nil *Metrics, so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livemon"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	pushMessages   *prometheus.CounterVec
	parseErrors    prometheus.Counter
	reconnects     prometheus.Counter
	connected      prometheus.Gauge
	cachePatches   *prometheus.CounterVec
	queryErrors    *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	escalations    prometheus.Counter
	notifications  *prometheus.CounterVec
	refreshSeconds *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "push_messages_total",
			Help:      "Inbound push messages processed, by message type",
		}, []string{"type"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "parse_errors_total",
			Help:      "Malformed push messages discarded",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "reconnects_total",
			Help:      "Push connection reconnect attempts",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "connected",
			Help:      "Whether the push channel is connected",
		}),
		cachePatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "patches_total",
			Help:      "Cache writes by resource kind and outcome",
		}, []string{"kind", "outcome"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "query_errors_total",
			Help:      "Failed remote reads by resource kind",
		}, []string{"kind"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "mutations_total",
			Help:      "Lifecycle commands by command and result",
		}, []string{"command", "result"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "escalations_total",
			Help:      "Alert escalations applied",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "dispatched_total",
			Help:      "Notification decisions by kind and result",
		}, []string{"kind", "result"}),
		refreshSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of remote refreshes",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.pushMessages, m.parseErrors, m.reconnects, m.connected,
		m.cachePatches, m.queryErrors, m.mutations, m.escalations,
		m.notifications, m.refreshSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PushMessage(msgType string) {
	if m == nil {
		return
	}
	m.pushMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// CachePatch records a cache write. outcome is "applied" or "dropped".
func (m *Metrics) CachePatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.cachePatches.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) QueryError(kind string) {
	if m == nil {
		return
	}
	m.queryErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRefresh(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.refreshSeconds.WithLabelValues(kind).Observe(seconds)
}

// Mutation records a lifecycle command. result is "ok", "rejected" or "failed".
func (m *Metrics) Mutation(command, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(command, result).Inc()
}

func (m *Metrics) Escalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// Notification records a dispatcher decision, e.g. ("alert", "sent") or
// ("alert", "deduplicated").
func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}
