package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/framestream/metric"
)

// Metrics holds Prometheus metrics for the MJPEG responder.
type Metrics struct {
	streamsActive    prometheus.Gauge
	streamsTotal     prometheus.Counter
	framesSent       prometheus.Counter
	framesSkipped    *prometheus.CounterVec
	generateDuration prometheus.Histogram
}

// newMetrics creates and registers responder metrics.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "streams_active",
			Help:      "Number of currently open MJPEG streams",
		}),
		streamsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "streams_total",
			Help:      "Total MJPEG streams served since start",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Total multipart frames written to clients",
		}),
		framesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "frames_skipped_total",
			Help:      "Frames not emitted, by reason",
		}, []string{"reason"}),
		generateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "generate_duration_seconds",
			Help:      "Time spent in the generation collaborator per request",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}

	if err := registry.RegisterGauge("stream", "streams_active", m.streamsActive); err != nil {
		return nil
	}
	if err := registry.RegisterCounter("stream", "streams_total", m.streamsTotal); err != nil {
		return nil
	}
	if err := registry.RegisterCounter("stream", "frames_sent", m.framesSent); err != nil {
		return nil
	}
	if err := registry.RegisterCounterVec("stream", "frames_skipped", m.framesSkipped); err != nil {
		return nil
	}
	if err := registry.RegisterHistogram("stream", "generate_duration", m.generateDuration); err != nil {
		return nil
	}

	return m
}
