// Package metrics exposes order and bag counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	OrdersPlaced       prometheus.Counter
	OrderTransitions   *prometheus.CounterVec
	OrderCompletion    prometheus.Histogram
	NotificationsSent  *prometheus.CounterVec
	BagMutations       *prometheus.CounterVec
	LiveSubscriptions  prometheus.Gauge
	LinkPreviewFailure prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders created from a bag",
		}),
		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_status_transitions_total",
				Help: "Order status changes",
			},
			[]string{"from", "to", "actor"},
		),
		OrderCompletion: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_completion_seconds",
			Help:    "Time from order placement to completion",
			Buckets: prometheus.LinearBuckets(0, 300, 12), // 5-minute buckets
		}),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Notifications emitted to users",
			},
			[]string{"kind"},
		),
		BagMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bag_mutations_total",
				Help: "Bag changes by operation",
			},
			[]string{"op"},
		),
		LiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_subscriptions",
			Help: "Open live update connections",
		}),
		LinkPreviewFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_preview_failures_total",
			Help: "Link previews that could not be fetched",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersPlaced,
		m.OrderTransitions,
		m.OrderCompletion,
		m.NotificationsSent,
		m.BagMutations,
		m.LiveSubscriptions,
		m.LinkPreviewFailure,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
