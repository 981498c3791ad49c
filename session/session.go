// Package session holds per-client session state and the process-wide
// registry that admits, tracks, and tears down sessions.
package session

import (
	"context"
	"image"
	"time"

	"github.com/c360/framestream/slotqueue"
)

// Request is one (image, parameters) pair submitted for generation. Requests
// are ephemeral: they exist only inside a session's queue slot, and
// superseded requests are discarded, never retried.
type Request struct {
	Image  image.Image
	Params Params
}

// Session is the server-side state for one connected client. The queue is
// owned exclusively by the session; the context is cancelled at teardown so
// the paired streaming responder observes removal promptly instead of
// discovering it opportunistically.
type Session struct {
	ID        string
	Queue     *slotqueue.Slot[Request]
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the session-scoped context. It is cancelled when the
// session is removed from the registry.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Age returns the elapsed time since the session was admitted.
func (s *Session) Age() time.Duration {
	return time.Since(s.StartedAt)
}

// teardown cancels the session context and drains and closes the queue.
// Idempotent; the slot and cancel both tolerate repeated calls.
func (s *Session) teardown() {
	s.cancel()
	s.Queue.Drain()
	s.Queue.Close()
}
