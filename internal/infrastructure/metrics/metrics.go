// Package metrics exposes the bridge's Prometheus metrics.
//
// Each Metrics value owns its own registry, so tests and multiple bridges
// in one process never collide on the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "victron_bridge"

// Metrics holds every collector the bridge updates.
type Metrics struct {
	registry *prometheus.Registry

	BusSubscriptions   prometheus.Gauge
	Subscribers        prometheus.Gauge
	Notifications      prometheus.Counter
	CallbackPanics     prometheus.Counter
	PendingActivations prometheus.Gauge
	ActiveServices     prometheus.Gauge
	BusConnected       prometheus.Gauge
	BusWrites          *prometheus.CounterVec
	ConditionalEmits   *prometheus.CounterVec
	VirtualQueued      prometheus.Counter
	ReconcileRemovals  prometheus.Counter
	ReconcileSkips     prometheus.Counter
	NodesDeployed      *prometheus.GaugeVec
	NotificationsSent  *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BusSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broker", Name: "bus_subscriptions",
			Help: "Distinct bus addresses with an underlying subscription",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broker", Name: "subscribers",
			Help: "Registered value callbacks across all addresses",
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broker", Name: "notifications_total",
			Help: "Bus value notifications dispatched",
		}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broker", Name: "callback_panics_total",
			Help: "Subscriber callbacks that panicked and were recovered",
		}),
		PendingActivations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broker", Name: "pending_activations",
			Help: "Addresses waiting for the bus connection before subscribing",
		}),
		ActiveServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broker", Name: "active_services",
			Help: "Services currently announced on the bus",
		}),
		BusConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bus", Name: "connected",
			Help: "1 while the bus connection is up",
		}),
		BusWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "writes_total",
			Help: "Bus writes by result",
		}, []string{"result"}),
		ConditionalEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conditional", Name: "confirmations_total",
			Help: "Confirmed conditional results by outcome",
		}, []string{"result"}),
		VirtualQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "virtual", Name: "queued_messages_total",
			Help: "Messages queued against virtual devices that were not ready",
		}),
		ReconcileRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "virtual", Name: "reconcile_removed_total",
			Help: "Orphaned virtual device settings removed",
		}),
		ReconcileSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "virtual", Name: "reconcile_skipped_total",
			Help: "Settings entries left alone because their identity could not be determined",
		}),
		NodesDeployed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "flow", Name: "nodes",
			Help: "Deployed nodes by type",
		}, []string{"type"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notification", Name: "injected_total",
			Help: "Notifications injected by type",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.BusSubscriptions,
		m.Subscribers,
		m.Notifications,
		m.CallbackPanics,
		m.PendingActivations,
		m.ActiveServices,
		m.BusConnected,
		m.BusWrites,
		m.ConditionalEmits,
		m.VirtualQueued,
		m.ReconcileRemovals,
		m.ReconcileSkips,
		m.NodesDeployed,
		m.NotificationsSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
