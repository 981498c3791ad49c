package ingress

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/framestream/metric"
)

// Metrics holds Prometheus metrics for the WebSocket ingress.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	pairsReceived     prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

// newMetrics creates and registers ingress metrics.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingress",
			Name:      "connections_active",
			Help:      "Number of currently open upload connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingress",
			Name:      "connections_total",
			Help:      "Total upload connections accepted since start",
		}),
		pairsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingress",
			Name:      "pairs_received_total",
			Help:      "Total image/parameter pairs queued for generation",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingress",
			Name:      "errors_total",
			Help:      "Ingress errors by type",
		}, []string{"error_type"}),
	}

	if err := registry.RegisterGauge("ingress", "connections_active", m.connectionsActive); err != nil {
		return nil
	}
	if err := registry.RegisterCounter("ingress", "connections_total", m.connectionsTotal); err != nil {
		return nil
	}
	if err := registry.RegisterCounter("ingress", "pairs_received", m.pairsReceived); err != nil {
		return nil
	}
	if err := registry.RegisterCounterVec("ingress", "errors", m.errorsTotal); err != nil {
		return nil
	}

	return m
}
