// Package slotqueue provides a thread-safe single-slot exchange cell with
// latest-write-wins semantics.
//
// A Slot holds at most one pending item. Put replaces any unread item and
// never blocks; Take suspends until an item arrives. This bounds the
// staleness a slow consumer can accumulate to a single in-flight item, which
// is exactly what a live generation pipeline needs: the consumer always sees
// the freshest request, and superseded requests are dropped without side
// effects.
//
// Statistics are always collected for observability. Prometheus metrics can
// be optionally enabled via the WithMetrics functional option.
package slotqueue

import (
	"context"
	"sync"

	"github.com/c360/framestream/errors"
)

// Slot is a one-element latest-wins container. The zero value is not usable;
// construct with New.
type Slot[T any] struct {
	mu      sync.Mutex
	item    T
	present bool
	closed  bool

	// notify carries at most one pending wakeup for blocked takers.
	notify chan struct{}
	// done is closed exactly once when the slot is closed.
	done     chan struct{}
	doneOnce sync.Once

	stats   *Statistics
	metrics *slotMetrics
	opts    *slotOptions[T]
}

// New creates an empty slot. Returns an error only if metrics registration
// fails when metrics are requested.
func New[T any](options ...Option[T]) (*Slot[T], error) {
	opts := applyOptions(options...)

	var metrics *slotMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newSlotMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Slot", "New", "metrics registration")
		}
	}

	return &Slot[T]{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Put stores an item, replacing and discarding any unread prior item. It
// never blocks; the effective depth after return is exactly one. Returns
// ErrQueueClosed after Close.
func (s *Slot[T]) Put(item T) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrQueueClosed, "Slot", "Put", "slot closed")
	}

	var dropped T
	var didDrop bool
	if s.present {
		dropped = s.item
		didDrop = true
		s.stats.Drop()
		if s.metrics != nil {
			s.metrics.recordDrop()
		}
	}

	s.item = item
	s.present = true
	s.stats.Put()
	if s.metrics != nil {
		s.metrics.recordPut(1)
	}

	// Wake one blocked taker; a pending wakeup is enough.
	select {
	case s.notify <- struct{}{}:
	default:
	}

	callback := s.opts.dropCallback
	s.mu.Unlock()

	// Run the drop callback outside the lock to avoid deadlock.
	if didDrop && callback != nil {
		callback(dropped)
	}

	return nil
}

// Take removes and returns the pending item, suspending until one is
// available. It returns ctx.Err() when the context is done and
// ErrQueueClosed when the slot has been closed with nothing pending.
func (s *Slot[T]) Take(ctx context.Context) (T, error) {
	var zero T

	for {
		s.mu.Lock()
		if s.present {
			item := s.item
			s.item = zero
			s.present = false
			s.stats.Take()
			if s.metrics != nil {
				s.metrics.recordTake(0)
			}
			s.mu.Unlock()
			return item, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, errors.WrapInvalid(errors.ErrQueueClosed, "Slot", "Take", "slot closed")
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Drain removes and discards any pending item without returning it.
// Safe to call repeatedly and after Close.
func (s *Slot[T]) Drain() {
	s.mu.Lock()

	var dropped T
	var didDrop bool
	if s.present {
		dropped = s.item
		didDrop = true
		var zero T
		s.item = zero
		s.present = false
		s.stats.Drop()
		if s.metrics != nil {
			s.metrics.recordDrop()
			s.metrics.updateDepth(0)
		}
	}

	callback := s.opts.dropCallback
	s.mu.Unlock()

	if didDrop && callback != nil {
		callback(dropped)
	}
}

// Close marks the slot closed and wakes any blocked takers. A pending item
// remains takeable until drained; further Puts fail. Idempotent.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Len reports the current depth, always 0 or 1.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.present {
		return 1
	}
	return 0
}

// Closed reports whether Close has been called.
func (s *Slot[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns slot statistics (always available for observability).
func (s *Slot[T]) Stats() *Statistics {
	return s.stats
}
