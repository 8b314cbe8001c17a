package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the delivery pipeline.
type Metrics struct {
	EventsPublished   prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	PendingDeliveries prometheus.Gauge
	EndpointsDisabled prometheus.Counter
}

// NewMetrics creates and registers the instruments on reg. Pass
// prometheus.DefaultRegisterer for standalone usage.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookline_events_published_total",
			Help: "Events accepted for fan-out.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookline_delivery_latency_seconds",
			Help:    "Webhook request round-trip time.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hookline_pending_deliveries",
			Help: "Deliveries awaiting attempt.",
		}),
		EndpointsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookline_endpoints_disabled_total",
			Help: "Endpoints disabled for failing past the health threshold.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsPublished,
			m.DeliveriesTotal,
			m.DeliveryLatency,
			m.PendingDeliveries,
			m.EndpointsDisabled,
		)
	}
	return m
}

// RecordDelivery records a delivery attempt outcome and its latency.
func (m *Metrics) RecordDelivery(outcome string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
