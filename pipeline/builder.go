package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/transport/inproc"
)

// MiddlewareFactory creates a middleware once dependencies are known.
type MiddlewareFactory func(deps component.Dependencies) (component.Component, error)

// BuilderRegistrar accepts builders for deferred construction.
type BuilderRegistrar interface {
	RegisterBuilder(b *Builder) error
}

// BuildOption adjusts a single Build call.
type BuildOption func(*buildOptions)

type buildOptions struct {
	recentExceptions int
}

// WithRecentExceptions sets the pool size for builders that did not choose one.
func WithRecentExceptions(n int) BuildOption {
	return func(o *buildOptions) {
		if n > 0 {
			o.recentExceptions = n
		}
	}
}

// Builder assembles a Pipeline. Methods record the first error and Build
// reports it.
type Builder struct {
	id               string
	group            string
	outer            component.CommunicationMetadata
	inner            component.CommunicationMetadata
	factories        []MiddlewareFactory
	recentExceptions int
	built            bool
	err              error
}

// NewBuilder starts a pipeline definition with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

// ID returns the id the pipeline will carry
func (b *Builder) ID() string { return b.id }

// Group sets the group id used to list related pipelines together.
func (b *Builder) Group(group string) *Builder {
	b.group = group
	return b
}

// Outer sets the endpoint facing the external system.
func (b *Builder) Outer(md component.CommunicationMetadata) *Builder {
	b.outer = md
	return b
}

// Inner sets the endpoint facing application code. Without it the pipeline
// gets an in-process endpoint.
func (b *Builder) Inner(md component.CommunicationMetadata) *Builder {
	b.inner = md
	return b
}

// Use appends a ready middleware to the chain.
func (b *Builder) Use(mw component.Component) *Builder {
	if mw == nil {
		b.fail(errors.WrapInvalid(errors.ErrInvalidConfig, "Builder", "Use", "nil middleware"))
		return b
	}
	return b.UseFactory(func(component.Dependencies) (component.Component, error) { return mw, nil })
}

// UseFactory appends a middleware created during Build.
func (b *Builder) UseFactory(f MiddlewareFactory) *Builder {
	if f == nil {
		b.fail(errors.WrapInvalid(errors.ErrInvalidConfig, "Builder", "UseFactory", "nil factory"))
		return b
	}
	b.factories = append(b.factories, f)
	return b
}

// UseKind appends a middleware resolved through registry by kind.
func (b *Builder) UseKind(registry *component.Registry, kind string, raw json.RawMessage) *Builder {
	return b.UseFactory(func(deps component.Dependencies) (component.Component, error) {
		return registry.CreateMiddleware(kind, raw, deps)
	})
}

// KeepExceptions sets how many faults the pipeline's pool holds.
func (b *Builder) KeepExceptions(n int) *Builder {
	if n <= 0 {
		b.fail(errors.WrapInvalid(
			fmt.Errorf("%w: exception pool size %d", errors.ErrInvalidConfig, n),
			"Builder", "KeepExceptions", "size validation"))
		return b
	}
	b.recentExceptions = n
	return b
}

// Register hands the builder to r, typically an engine.Central.
func (b *Builder) Register(r BuilderRegistrar) error {
	return r.RegisterBuilder(b)
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates both endpoint configurations, constructs the endpoints and
// middleware and binds the endpoints to the new pipeline. A builder builds once.
func (b *Builder) Build(deps component.Dependencies, opts ...BuildOption) (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, errors.WrapInvalid(errors.ErrAlreadyBuilt, "Builder", "Build", "build "+b.id)
	}
	if err := component.ValidateComponentName(b.id); err != nil {
		return nil, errors.Wrap(err, "Builder", "Build", "pipeline id validation")
	}
	if b.outer == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: outer endpoint", errors.ErrMissingConfig), "Builder", "Build", "pipeline "+b.id)
	}
	b.built = true

	bo := buildOptions{recentExceptions: DefaultRecentExceptions}
	for _, opt := range opts {
		opt(&bo)
	}
	if b.recentExceptions > 0 {
		bo.recentExceptions = b.recentExceptions
	}

	innerMeta := b.inner
	if innerMeta == nil {
		md := inproc.Default()
		md.Name = b.id
		innerMeta = md
	}

	outer, err := buildEndpoint("outer", b.outer, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "Build", "pipeline "+b.id)
	}
	inner, err := buildEndpoint("inner", innerMeta, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "Build", "pipeline "+b.id)
	}

	middlewares := make([]component.Component, 0, len(b.factories))
	for i, f := range b.factories {
		mw, err := f(deps)
		if err != nil {
			return nil, errors.Wrap(err, "Builder", "Build", fmt.Sprintf("pipeline %s middleware %d", b.id, i))
		}
		if err := checkMiddleware(mw); err != nil {
			return nil, errors.Wrap(err, "Builder", "Build", fmt.Sprintf("pipeline %s middleware %d", b.id, i))
		}
		middlewares = append(middlewares, mw)
	}

	pool, err := NewExceptionPool(b.id, bo.recentExceptions, deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "Build", "pipeline "+b.id)
	}

	p := &Pipeline{
		id:          b.id,
		groupID:     b.group,
		inner:       inner,
		outer:       outer,
		middlewares: middlewares,
		pool:        pool,
		logger:      deps.GetLoggerWithComponent("pipeline").With("channel", b.id),
	}
	if deps.MetricsRegistry != nil {
		p.metrics = deps.MetricsRegistry.CoreMetrics()
		p.metrics.RecordChannelStatus(p.id, int(StatusUninitialized))
	}

	inner.Bind(&boundEndpoint{pipeline: p, core: inner}, message.SourceInner)
	outer.Bind(&boundEndpoint{pipeline: p, core: outer}, message.SourceOuter)
	return p, nil
}

func buildEndpoint(side string, md component.CommunicationMetadata, deps component.Dependencies) (component.CommunicationCore, error) {
	if err := md.EnrichOrValidate(); err != nil {
		return nil, errors.Wrap(err, "Builder", "buildEndpoint", side+" metadata validation")
	}

	core, err := md.NewCore(deps)
	if err != nil {
		return nil, errors.Wrap(err, "Builder", "buildEndpoint", side+" endpoint construction")
	}

	want := md.ConnectionDirection()
	if have := core.SupportedDirection(); !have.Allows(want) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s wants %s but supports %s",
				errors.ErrDirectionUnsupported, component.Describe(core), want, have),
			"Builder", "buildEndpoint", side+" direction check")
	}
	return core, nil
}

func checkMiddleware(mw component.Component) error {
	switch mw.(type) {
	case nil:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Builder", "checkMiddleware", "nil middleware")
	case component.CommunicationCore:
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is an endpoint", errors.ErrInvalidConfig, component.Describe(mw)),
			"Builder", "checkMiddleware", "capability check")
	case component.EndpointMiddleware, component.TransformMiddleware, component.MonitorMiddleware:
		return nil
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no middleware capability", errors.ErrInvalidConfig, component.Describe(mw)),
			"Builder", "checkMiddleware", "capability check")
	}
}
