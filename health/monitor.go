package health

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// TransitionFunc is called when a tracked status changes state.
// prev is the zero Status the first time a name is seen.
type TransitionFunc func(prev, next Status)

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithTransitionHook registers fn to run after every state change.
// The hook runs outside the monitor lock.
func WithTransitionHook(fn TransitionFunc) MonitorOption {
	return func(m *Monitor) {
		m.onTransition = fn
	}
}

// Monitor tracks named health statuses that are not channels, such as
// broker connections. Safe for concurrent use.
type Monitor struct {
	mu           sync.RWMutex
	statuses     map[string]Status
	onTransition TransitionFunc
}

// NewMonitor creates an empty monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{statuses: make(map[string]Status)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update stores status under name. The stored Component is always name.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	prev, existed := m.statuses[name]
	m.statuses[name] = status
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil && (!existed || prev.Status != status.Status) {
		hook(prev, status)
	}
}

// UpdateHealthy marks name healthy.
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy marks name unhealthy.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded marks name degraded.
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get returns the status tracked under name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[name]
	return status, ok
}

// GetAll returns a copy of every tracked status.
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.statuses)
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// Names returns the tracked names in sorted order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.statuses))
}

// Statuses returns every tracked status ordered by name.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.statuses))
	for _, name := range slices.Sorted(maps.Keys(m.statuses)) {
		out = append(out, m.statuses[name])
	}
	return out
}

// AggregateHealth folds every tracked status into one named systemName.
func (m *Monitor) AggregateHealth(systemName string) Status {
	return Aggregate(systemName, m.Statuses())
}
