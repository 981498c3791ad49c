package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/slotqueue"
)

// Registry is the process-wide mapping from session id to session state.
// All mutations go through Admit and Remove so capacity checks and size
// introspection never observe a torn state.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxSessions int

	logger  *slog.Logger
	metrics *registryMetrics
}

// registryMetrics holds Prometheus metrics for the session registry.
type registryMetrics struct {
	sessionsActive  prometheus.Gauge
	admittedTotal   prometheus.Counter
	rejectedTotal   prometheus.Counter
	removedTotal    prometheus.Counter
	supersededTotal prometheus.Counter
}

// newRegistryMetrics creates and registers registry metrics.
func newRegistryMetrics(registry *metric.MetricsRegistry) *registryMetrics {
	if registry == nil {
		return nil
	}

	m := &registryMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live sessions in the registry",
		}),
		admittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "admitted_total",
			Help:      "Total sessions admitted",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "rejected_total",
			Help:      "Total admissions rejected at capacity",
		}),
		removedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "removed_total",
			Help:      "Total sessions removed",
		}),
		supersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "requests_superseded_total",
			Help:      "Total queued requests discarded because a newer request arrived",
		}),
	}

	_ = registry.RegisterGauge("sessions", "active", m.sessionsActive)
	_ = registry.RegisterCounter("sessions", "admitted", m.admittedTotal)
	_ = registry.RegisterCounter("sessions", "rejected", m.rejectedTotal)
	_ = registry.RegisterCounter("sessions", "removed", m.removedTotal)
	_ = registry.RegisterCounter("sessions", "superseded", m.supersededTotal)

	return m
}

// NewRegistry creates a registry with the given concurrent session cap.
// A cap of zero means unlimited.
func NewRegistry(maxSessions int, logger *slog.Logger, metricsRegistry *metric.MetricsRegistry) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		logger:      logger.With("component", "session_registry"),
		metrics:     newRegistryMetrics(metricsRegistry),
	}
}

// Admit atomically checks capacity and creates a new session. At capacity it
// returns ErrServerFull with no mutation; otherwise the session is inserted
// with a fresh id, an empty queue, and a started-at timestamp.
func (r *Registry) Admit() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		if r.metrics != nil {
			r.metrics.rejectedTotal.Inc()
		}
		return nil, errors.ErrServerFull
	}

	var slotOpts []slotqueue.Option[Request]
	if r.metrics != nil {
		slotOpts = append(slotOpts, slotqueue.WithDropCallback[Request](func(Request) {
			r.metrics.supersededTotal.Inc()
		}))
	}

	queue, err := slotqueue.New[Request](slotOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Registry", "Admit", "create request queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        uuid.NewString(),
		Queue:     queue,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	r.sessions[sess.ID] = sess

	if r.metrics != nil {
		r.metrics.admittedTotal.Inc()
		r.metrics.sessionsActive.Set(float64(len(r.sessions)))
	}
	r.logger.Info("session admitted", "session_id", sess.ID, "active", len(r.sessions))

	return sess, nil
}

// Lookup returns the session for an id. An unknown id is a defined
// not-found outcome, never a fault.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove tears down and deletes a session. Idempotent: removing an unknown
// id is a no-op, and repeated removals are safe.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	// Teardown happens outside the lock: cancelling the session context and
	// closing the queue may wake a streaming responder that immediately
	// calls back into the registry.
	sess.teardown()

	if r.metrics != nil {
		r.metrics.removedTotal.Inc()
		r.metrics.sessionsActive.Set(float64(active))
	}
	r.logger.Info("session removed", "session_id", id, "active", active, "age", sess.Age())
}

// Size returns the current live session count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close removes every live session. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
