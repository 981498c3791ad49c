package slotqueue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/framestream/metric"
)

// slotMetrics holds Prometheus metrics for slot operations.
type slotMetrics struct {
	puts  prometheus.Counter
	takes prometheus.Counter
	drops prometheus.Counter
	depth prometheus.Gauge
}

// newSlotMetrics creates and registers slot metrics with the provided registry.
func newSlotMetrics(registry *metric.MetricsRegistry, prefix string) (*slotMetrics, error) {
	m := &slotMetrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "slotqueue",
			Name:        "puts_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of slot put operations",
		}),
		takes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "slotqueue",
			Name:        "takes_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of slot take operations",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "slotqueue",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of items superseded or drained before delivery",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "slotqueue",
			Name:        "depth",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current slot depth (0 or 1)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "slot_puts", m.puts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "slot_takes", m.takes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "slot_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "slot_depth", m.depth); err != nil {
		return nil, err
	}

	return m, nil
}

// recordPut increments the put counter and sets the depth gauge.
func (m *slotMetrics) recordPut(depth int) {
	m.puts.Inc()
	m.depth.Set(float64(depth))
}

// recordTake increments the take counter and sets the depth gauge.
func (m *slotMetrics) recordTake(depth int) {
	m.takes.Inc()
	m.depth.Set(float64(depth))
}

// recordDrop increments the drop counter.
func (m *slotMetrics) recordDrop() {
	m.drops.Inc()
}

// updateDepth sets the current depth gauge.
func (m *slotMetrics) updateDepth(depth int) {
	m.depth.Set(float64(depth))
}
