// ABOUTME: Prometheus instrumentation for the relay server.
// ABOUTME: Exposed at /metrics on the relay's HTTP listener.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AgentsOnline tracks currently connected agents.
	AgentsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yotei_relay_agents_online",
			Help: "Agents currently connected to the relay",
		},
	)

	// ConnectsTotal counts agent connections over the process lifetime.
	ConnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yotei_relay_connects_total",
			Help: "Total agent connections accepted",
		},
	)

	// MessagesRouted counts routed messages by type and route kind.
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yotei_relay_messages_routed_total",
			Help: "Total messages routed",
		},
		[]string{"type", "route"}, // route: "direct", "broadcast", "topic"
	)

	// RoutingErrors counts error messages the relay sent back, by code.
	RoutingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yotei_relay_routing_errors_total",
			Help: "Total routing errors returned to senders",
		},
		[]string{"code"},
	)

	// DeliveryDuration observes per-connection send latency.
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yotei_relay_delivery_seconds",
			Help:    "Time to write a message to one connection",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)
)
