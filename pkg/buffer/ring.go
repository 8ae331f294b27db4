package buffer

import (
	"sync"

	"github.com/c360/datachannel/errors"
)

type ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool

	stats   *Statistics
	metrics *bufferMetrics
	opts    *settings[T]
}

func newRing[T any](capacity int, opts *settings[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.registry != nil {
		var err error
		metrics, err = newBufferMetrics(opts.registry, opts.name)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewCircularBuffer", "metrics registration")
		}
	}

	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

func (r *ring[T]) Write(item T) error {
	var (
		dropped    T
		hasDropped bool
	)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if r.size == r.capacity {
		r.stats.Overflow()
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordDrop()
		}

		if r.opts.policy == DropNewest {
			r.mu.Unlock()
			if r.opts.onDrop != nil {
				r.opts.onDrop(item)
			}
			return nil
		}

		var zero T
		dropped, hasDropped = r.items[r.tail], true
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
		r.size--
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++

	r.stats.Write()
	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordWrite(r.size, r.capacity)
	}
	r.mu.Unlock()

	// Callbacks run outside the lock so they may touch the buffer.
	if hasDropped && r.opts.onDrop != nil {
		r.opts.onDrop(dropped)
	}
	return nil
}

func (r *ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.pop()
	r.afterRead()
	return item, true
}

func (r *ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	n := min(max, r.size)
	out := make([]T, n)
	for i := range out {
		out[i] = r.pop()
	}
	r.afterRead()
	return out
}

// pop removes the tail item. Caller holds the write lock and has checked size.
func (r *ring[T]) pop() T {
	var zero T
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.Read()
	return item
}

func (r *ring[T]) afterRead() {
	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.updateSize(r.size, r.capacity)
	}
}

func (r *ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.tail], true
}

func (r *ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[(r.tail+i)%r.capacity]
	}
	return out
}

func (r *ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity is immutable after construction.
func (r *ring[T]) Capacity() int {
	return r.capacity
}

func (r *ring[T]) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == r.capacity
}

func (r *ring[T]) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == 0
}

func (r *ring[T]) Clear() {
	r.mu.Lock()
	var removed []T
	if r.opts.onDrop != nil {
		removed = make([]T, r.size)
		for i := range removed {
			removed[i] = r.items[(r.tail+i)%r.capacity]
		}
	}

	clear(r.items)
	r.head, r.tail, r.size = 0, 0, 0
	r.afterRead()
	r.mu.Unlock()

	for _, item := range removed {
		r.opts.onDrop(item)
	}
}

func (r *ring[T]) Stats() *Statistics {
	return r.stats
}

func (r *ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
