package health

import (
	"strings"
	"time"
)

// Health states reported in Status.Status.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status is the health of one component, optionally with the statuses it
// was derived from.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the counters a status was computed from.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status for component.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded returns a degraded status for component.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy returns an unhealthy status for component.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

func (s Status) IsHealthy() bool   { return s.Status == StateHealthy }
func (s Status) IsDegraded() bool  { return s.Status == StateDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// WithMetrics returns a copy of s carrying metrics.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy of s with sub appended. The receiver's
// slice is never shared with the result.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// ChannelState is the health-relevant view of a data channel.
type ChannelState struct {
	ID              string
	Status          string // uninitialized, initializing, ready, not_available, closed
	LastError       string
	ExceptionCount  int
	TotalExceptions int64
	Uptime          time.Duration
	LastActivity    time.Time
}

// FromChannel converts a channel state into a health Status.
//
// A ready channel is healthy until it has buffered exceptions, then it is
// degraded. Channels still coming up are degraded. Channels that failed
// initialization or were closed are unhealthy. LastError is redacted
// before it becomes the message.
func FromChannel(cs ChannelState) Status {
	state := StateUnhealthy
	message := "Channel " + strings.ReplaceAll(cs.Status, "_", " ")

	switch cs.Status {
	case "ready":
		state = StateHealthy
		message = "Channel ready"
		if cs.ExceptionCount > 0 {
			state = StateDegraded
		}
	case "initializing", "uninitialized":
		state = StateDegraded
	}

	if cs.LastError != "" && state != StateHealthy {
		message = Redact(cs.LastError)
	}

	return newStatus(cs.ID, state, message).WithMetrics(&Metrics{
		Uptime:       cs.Uptime,
		ErrorCount:   cs.ExceptionCount,
		LastActivity: cs.LastActivity,
	})
}
