package slotqueue

import (
	"github.com/c360/framestream/metric"
)

// Option configures slot behavior using the functional options pattern.
type Option[T any] func(*slotOptions[T])

// DropCallback is called with each item discarded because a newer item
// superseded it (or because the slot was drained).
type DropCallback[T any] func(item T)

// slotOptions holds internal configuration for slot instances.
// Stats are always collected; metrics are optional via WithMetrics.
type slotOptions[T any] struct {
	dropCallback DropCallback[T]

	// metricsReg is optional - if provided, slot stats are also exposed as
	// Prometheus metrics under the given component prefix.
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for slot statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *slotOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked for every discarded item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *slotOptions[T]) {
		opts.dropCallback = callback
	}
}

// applyOptions applies functional options to build the final configuration.
func applyOptions[T any](options ...Option[T]) *slotOptions[T] {
	opts := &slotOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
