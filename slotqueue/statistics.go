package slotqueue

import (
	"sync/atomic"
)

// Statistics tracks slot activity counters. All methods are safe for
// concurrent use.
type Statistics struct {
	puts  atomic.Int64
	takes atomic.Int64
	drops atomic.Int64
}

// NewStatistics creates a zeroed statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Put records a stored item.
func (s *Statistics) Put() {
	s.puts.Add(1)
}

// Take records a consumed item.
func (s *Statistics) Take() {
	s.takes.Add(1)
}

// Drop records a discarded (superseded or drained) item.
func (s *Statistics) Drop() {
	s.drops.Add(1)
}

// Puts returns the total number of stored items.
func (s *Statistics) Puts() int64 {
	return s.puts.Load()
}

// Takes returns the total number of consumed items.
func (s *Statistics) Takes() int64 {
	return s.takes.Load()
}

// Drops returns the total number of discarded items.
func (s *Statistics) Drops() int64 {
	return s.drops.Load()
}
