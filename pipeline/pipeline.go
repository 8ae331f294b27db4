package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/metric"
)

// Status is the availability of a pipeline.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusNotAvailable
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusNotAvailable:
		return "not_available"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusUninitialized; st <= StatusClosed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: status %q", errors.ErrParsingFailed, text), "Status", "UnmarshalText", "parse")
}

// Pipeline owns two endpoints and the middleware between them.
type Pipeline struct {
	id      string
	groupID string

	inner       component.CommunicationCore
	outer       component.CommunicationCore
	middlewares []component.Component

	pool    *ExceptionPool
	logger  *slog.Logger
	metrics *metric.Metrics

	initializing atomic.Bool
	initialized  atomic.Bool
	notAvailable atomic.Bool
	closed       atomic.Bool
}

// ID returns the pipeline id
func (p *Pipeline) ID() string { return p.id }

// GroupID returns the optional group the pipeline belongs to
func (p *Pipeline) GroupID() string { return p.groupID }

// Inner returns the endpoint facing application logic
func (p *Pipeline) Inner() component.CommunicationCore { return p.inner }

// Outer returns the endpoint facing the external system
func (p *Pipeline) Outer() component.CommunicationCore { return p.outer }

// Exceptions returns the pipeline's exception pool
func (p *Pipeline) Exceptions() *ExceptionPool { return p.pool }

// Middlewares returns the chain in registration order.
func (p *Pipeline) Middlewares() []component.Component {
	return slices.Clone(p.middlewares)
}

// Components returns both endpoints followed by the middleware chain.
func (p *Pipeline) Components() []component.Component {
	all := make([]component.Component, 0, len(p.middlewares)+2)
	all = append(all, p.inner, p.outer)
	return append(all, p.middlewares...)
}

// Middleware finds a middleware by name, falling back to kind.
func (p *Pipeline) Middleware(name string) (component.Component, bool) {
	for _, mw := range p.middlewares {
		if mw.Meta().Name == name {
			return mw, true
		}
	}
	for _, mw := range p.middlewares {
		if mw.Meta().Kind == name {
			return mw, true
		}
	}
	return nil, false
}

// IsInitialized reports whether the last Init succeeded
func (p *Pipeline) IsInitialized() bool { return p.initialized.Load() }

// IsInitializing reports whether Init is running
func (p *Pipeline) IsInitializing() bool { return p.initializing.Load() }

// IsNotAvailable reports whether the last Init failed
func (p *Pipeline) IsNotAvailable() bool { return p.notAvailable.Load() }

// HasExceptions reports whether the pool holds any fault
func (p *Pipeline) HasExceptions() bool { return p.pool.HasExceptions() }

// Status summarizes the lifecycle flags
func (p *Pipeline) Status() Status {
	switch {
	case p.initializing.Load():
		return StatusInitializing
	case p.initialized.Load():
		return StatusReady
	case p.notAvailable.Load():
		return StatusNotAvailable
	case p.closed.Load():
		return StatusClosed
	default:
		return StatusUninitialized
	}
}

// Send threads dc through the middleware chain and hands it to the endpoint
// opposite its source. It never panics.
func (p *Pipeline) Send(ctx context.Context, dc *message.DataContext) (delivery component.Delivery) {
	if !dc.HasData() {
		p.observe("none", component.Dropped, time.Time{})
		return component.Dropped
	}

	start := time.Now()
	source := dc.Source.String()
	var current any

	defer func() {
		if r := recover(); r != nil {
			err := errors.WrapFatal(fmt.Errorf("panic: %v", r), "Pipeline", "Send", "dispatch")
			p.record(err, current, "panic during dispatch")
			delivery = component.Faulted
		}
		p.observe(source, delivery, start)
	}()

	for _, mw := range p.middlewares {
		current = mw

		var err error
		switch m := mw.(type) {
		case component.EndpointMiddleware:
			dc, err = m.Handle(ctx, dc)
		case component.TransformMiddleware:
			dc, err = m.Pass(dc)
		case component.MonitorMiddleware:
			m.Observe(ctx, dc.Clone())
		}

		if err != nil {
			p.record(err, mw, "")
			return component.Faulted
		}
		if !dc.HasData() {
			return component.Dropped
		}
	}

	target := p.target(dc.Source)
	if target == nil {
		return component.Dropped
	}
	current = target

	if err := target.Receive(ctx, dc); err != nil {
		p.record(err, target, "")
		return component.Faulted
	}
	return component.Delivered
}

// target resolves the endpoint a message from source is delivered to.
// Middleware-originated messages have no target.
func (p *Pipeline) target(source message.Source) component.CommunicationCore {
	switch source {
	case message.SourceOuter:
		return p.inner
	case message.SourceInner:
		return p.outer
	default:
		return nil
	}
}

// CollectException records err against source. A nil err is ignored.
func (p *Pipeline) CollectException(err error, source any, description string) {
	p.record(err, source, description)
}

func (p *Pipeline) record(err error, source any, description string) {
	pe, ok := p.pool.AddExceptionWithDescription(err, source, description)
	if !ok {
		return
	}

	p.logger.Warn("Pipeline fault",
		"component", pe.SourceDescription,
		"source_type", pe.SourceType,
		"error", pe.Message)

	if p.metrics != nil {
		p.metrics.RecordException(p.id, string(pe.SourceType))
	}
}

func (p *Pipeline) observe(source string, d component.Delivery, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordMessage(p.id, source, d.String())
	if !start.IsZero() {
		p.metrics.RecordDispatchDuration(p.id, source, time.Since(start))
	}
}

// Init initializes the inner endpoint, the outer endpoint and then every
// middleware implementing component.Initializer. All failures are recorded
// and returned joined; a panicking component counts as a fatal failure.
// A call while Init is already running returns nil.
func (p *Pipeline) Init(ctx context.Context) error {
	if !p.initializing.CompareAndSwap(false, true) {
		return nil
	}
	defer p.initializing.Store(false)

	start := time.Now()
	p.closed.Store(false)

	var errs []error
	for _, core := range []component.CommunicationCore{p.inner, p.outer} {
		if err := guarded(ctx, "Init", core.Init); err != nil {
			p.record(err, core, "endpoint initialization failed")
			errs = append(errs, errors.Wrap(err, "Pipeline", "Init", component.Describe(core)+" init"))
		}
	}

	for _, mw := range p.middlewares {
		in, ok := mw.(component.Initializer)
		if !ok {
			continue
		}
		if err := guarded(ctx, "Init", in.Init); err != nil {
			p.record(err, mw, "middleware initialization failed")
			errs = append(errs, errors.Wrap(err, "Pipeline", "Init", component.Describe(mw)+" init"))
		}
	}

	err := errors.Join(errs...)
	p.initialized.Store(err == nil)
	p.notAvailable.Store(err != nil)

	if p.metrics != nil {
		p.metrics.RecordInitDuration(p.id, time.Since(start))
		p.metrics.RecordChannelStatus(p.id, int(p.Status()))
	}

	if err != nil {
		p.logger.Warn("Pipeline not available", "failures", len(errs))
		return err
	}
	p.logger.Info("Pipeline initialized", "duration", time.Since(start))
	return nil
}

// ReInitialize closes the pipeline and runs Init again.
func (p *Pipeline) ReInitialize(ctx context.Context) error {
	if err := p.Close(ctx); err != nil {
		p.logger.Warn("Close before re-initialization failed", "error", err)
	}
	return p.Init(ctx)
}

// Close releases both endpoints and every middleware implementing
// component.Closer. Errors are returned joined.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for _, core := range []component.CommunicationCore{p.outer, p.inner} {
		if err := guarded(ctx, "Close", core.Close); err != nil {
			errs = append(errs, errors.Wrap(err, "Pipeline", "Close", component.Describe(core)+" close"))
		}
	}
	for _, mw := range p.middlewares {
		if c, ok := mw.(component.Closer); ok {
			if err := guarded(ctx, "Close", c.Close); err != nil {
				errs = append(errs, errors.Wrap(err, "Pipeline", "Close", component.Describe(mw)+" close"))
			}
		}
	}

	p.initialized.Store(false)
	p.notAvailable.Store(false)
	p.closed.Store(true)
	if p.metrics != nil {
		p.metrics.RecordChannelStatus(p.id, int(StatusClosed))
	}
	return errors.Join(errs...)
}

// guarded runs a lifecycle call, turning a panic into a fatal error.
func guarded(ctx context.Context, method string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "Pipeline", method, "component "+method)
		}
	}()
	return fn(ctx)
}

// boundEndpoint is the Dispatcher handed to one endpoint. Faults collected
// through it are attributed to that endpoint.
type boundEndpoint struct {
	pipeline *Pipeline
	core     component.CommunicationCore
}

func (b *boundEndpoint) Send(ctx context.Context, dc *message.DataContext) component.Delivery {
	return b.pipeline.Send(ctx, dc)
}

func (b *boundEndpoint) CollectException(err error, description string) {
	b.pipeline.record(err, b.core, description)
}
