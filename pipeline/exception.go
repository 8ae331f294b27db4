package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/metric"
	"github.com/c360/datachannel/pkg/buffer"
)

// DefaultRecentExceptions is the pool size used when none is configured.
const DefaultRecentExceptions = 10

// PipelineException is one recorded fault.
type PipelineException struct {
	ID                uuid.UUID            `json:"id"`
	Timestamp         time.Time            `json:"timestamp"`
	Err               error                `json:"-"`
	Message           string               `json:"message"`
	ErrorClass        string               `json:"error_class"`
	Source            any                  `json:"-"`
	SourceType        component.SourceType `json:"source_type"`
	SourceDescription string               `json:"source_description"`
	Description       string               `json:"description,omitempty"`
}

func newPipelineException(err error, source any, description string) PipelineException {
	return PipelineException{
		ID:                uuid.New(),
		Timestamp:         time.Now(),
		Err:               err,
		Message:           err.Error(),
		ErrorClass:        errors.Classify(err).String(),
		Source:            source,
		SourceType:        component.ClassifySource(source),
		SourceDescription: component.Describe(source),
		Description:       description,
	}
}

// ExceptionSummary is the aggregate view of one pool.
type ExceptionSummary struct {
	PipelineID string     `json:"pipeline_id"`
	Count      int        `json:"count"`
	TotalCount int64      `json:"total_count"`
	MaxSize    int        `json:"max_size"`
	LatestAt   *time.Time `json:"latest_at,omitempty"`
}

// ExceptionPool keeps the most recent faults of one pipeline.
//
// Count never exceeds MaxSize; the oldest entry is evicted on overflow.
// TotalCount only grows, Clear leaves it untouched.
type ExceptionPool struct {
	pipelineID string
	maxSize    int

	mu    sync.RWMutex
	ring  buffer.Buffer[PipelineException]
	total int64
}

// NewExceptionPool creates a pool holding at most maxSize entries. When
// registry is non-nil the ring's statistics are exported as Prometheus metrics.
func NewExceptionPool(pipelineID string, maxSize int, registry *metric.MetricsRegistry) (*ExceptionPool, error) {
	if pipelineID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "ExceptionPool", "New", "pipeline id validation")
	}
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: max size %d", errors.ErrInvalidConfig, maxSize),
			"ExceptionPool", "New", "size validation")
	}

	opts := []buffer.Option[PipelineException]{
		buffer.WithOverflowPolicy[PipelineException](buffer.DropOldest),
	}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[PipelineException](registry, "exceptions_"+pipelineID))
	}

	ring, err := buffer.NewCircularBuffer(maxSize, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "ExceptionPool", "New", "ring allocation")
	}

	return &ExceptionPool{
		pipelineID: pipelineID,
		maxSize:    maxSize,
		ring:       ring,
	}, nil
}

// PipelineID returns the owning pipeline's id
func (p *ExceptionPool) PipelineID() string { return p.pipelineID }

// MaxSize returns the pool capacity
func (p *ExceptionPool) MaxSize() int { return p.maxSize }

// AddException records err against source. A nil err is ignored.
func (p *ExceptionPool) AddException(err error, source any) (PipelineException, bool) {
	return p.AddExceptionWithDescription(err, source, "")
}

// AddExceptionWithDescription records err with an extra human-readable note.
func (p *ExceptionPool) AddExceptionWithDescription(err error, source any, description string) (PipelineException, bool) {
	if err == nil {
		return PipelineException{}, false
	}
	pe := newPipelineException(err, source, description)

	p.mu.Lock()
	defer p.mu.Unlock()

	// The ring only rejects writes after Close, which the pool never calls.
	_ = p.ring.Write(pe)
	p.total++
	return pe, true
}

// Count returns the number of held entries
func (p *ExceptionPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ring.Size()
}

// TotalCount returns how many exceptions were ever added
func (p *ExceptionPool) TotalCount() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// HasExceptions reports whether any entry is held
func (p *ExceptionPool) HasExceptions() bool {
	return p.Count() > 0
}

// GetExceptions returns every held entry, newest first.
func (p *ExceptionPool) GetExceptions() []PipelineException {
	p.mu.RLock()
	held := p.ring.Snapshot()
	p.mu.RUnlock()

	// Snapshot is oldest first; reversing keeps insertion order as the tie
	// breaker for equal timestamps.
	slices.Reverse(held)
	slices.SortStableFunc(held, func(a, b PipelineException) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})
	return held
}

// GetRecentExceptions returns up to n entries, newest first. n <= 0 yields none.
func (p *ExceptionPool) GetRecentExceptions(n int) []PipelineException {
	if n <= 0 {
		return []PipelineException{}
	}
	all := p.GetExceptions()
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Clear drops all held entries
func (p *ExceptionPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring.Clear()
}

// Summary returns counts and the newest timestamp
func (p *ExceptionPool) Summary() ExceptionSummary {
	s := ExceptionSummary{
		PipelineID: p.pipelineID,
		MaxSize:    p.maxSize,
	}

	p.mu.RLock()
	s.Count = p.ring.Size()
	s.TotalCount = p.total
	held := p.ring.Snapshot()
	p.mu.RUnlock()

	for i := range held {
		ts := held[i].Timestamp
		if s.LatestAt == nil || ts.After(*s.LatestAt) {
			s.LatestAt = &ts
		}
	}
	return s
}
