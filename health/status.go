// Package health provides health status types for the service health endpoint
package health

import (
	"time"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime         time.Duration `json:"uptime"`
	ActiveSessions int           `json:"active_sessions,omitempty"`
	ErrorCount     int           `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// Healthy builds a healthy status for a component
func Healthy(component, message string) Status {
	if message == "" {
		message = "Component healthy"
	}
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status for a component
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines sub-statuses into an overall status. The result is
// unhealthy if any sub-status is unhealthy, degraded if any is degraded.
func Aggregate(component string, subs ...Status) Status {
	overall := Healthy(component, "All checks passing")
	for _, sub := range subs {
		overall = overall.WithSubStatus(sub)
		if sub.IsUnhealthy() {
			overall.Healthy = false
			overall.Status = "unhealthy"
			overall.Message = sub.Component + ": " + sub.Message
		} else if sub.IsDegraded() && overall.IsHealthy() {
			overall.Status = "degraded"
			overall.Message = sub.Component + ": " + sub.Message
		}
	}
	return overall
}
