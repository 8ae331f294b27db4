// Package buffer is a bounded, thread-safe ring with an overflow policy.
//
// Channels use it for the exception ring, the debugger board and the
// in-process backlog. Statistics are always kept; Prometheus export is
// opt-in through WithMetrics.
package buffer

import (
	"fmt"

	"github.com/c360/datachannel/metric"
)

// Buffer is a bounded FIFO of T.
type Buffer[T any] interface {
	// Write adds item, evicting or rejecting per the overflow policy when
	// full. It fails only after Close.
	Write(item T) error
	Read() (T, bool)
	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T
	Peek() (T, bool)
	// Snapshot copies the held items, oldest first, without removing them.
	Snapshot() []T
	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool
	// Clear empties the buffer, passing each removed item to the drop callback.
	Clear()
	Stats() *Statistics
	Close() error
}

// OverflowPolicy decides what a full buffer does with a new item.
type OverflowPolicy int

const (
	// DropOldest evicts the head to admit the new item.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the new item.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

// ParseOverflowPolicy accepts the String form of a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop_oldest", "":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", s)
}

// DropCallback receives every item evicted by the overflow policy or Clear.
type DropCallback[T any] func(item T)

// Option configures a buffer at construction.
type Option[T any] func(*settings[T])

type settings[T any] struct {
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	registry *metric.MetricsRegistry
	name     string
}

// WithOverflowPolicy sets the overflow policy. The default is DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(s *settings[T]) { s.policy = policy }
}

// WithDropCallback registers fn for dropped items. It runs outside the
// buffer lock.
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(s *settings[T]) { s.onDrop = fn }
}

// WithMetrics exports the buffer's counters to registry under name. A nil
// registry or empty name leaves export off.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(s *settings[T]) {
		if registry == nil || name == "" {
			return
		}
		s.registry, s.name = registry, name
	}
}

// NewCircularBuffer returns a ring holding at most capacity items. A
// capacity below one is raised to one. It fails only when metric
// registration was requested and the name is taken.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	s := &settings[T]{policy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return newRing(capacity, s)
}
