package component

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// Delivery is the result of dispatching one message through a pipeline.
type Delivery int

const (
	// Delivered means the opposite endpoint accepted the message
	Delivered Delivery = iota
	// Dropped means a middleware halted propagation without error
	Dropped
	// Faulted means an error was recorded in the pipeline's exception pool
	Faulted
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Dispatcher is the view of a pipeline an endpoint is bound to.
type Dispatcher interface {
	// Send threads dc through the pipeline. It never panics and never returns
	// an error; failures are recorded and reported as Faulted.
	Send(ctx context.Context, dc *message.DataContext) Delivery

	// CollectException records a fault raised outside Send, such as in a
	// background consume loop, against the bound endpoint.
	CollectException(err error, description string)
}

// CommunicationCore is the transport adapter contract.
type CommunicationCore interface {
	Component

	// Init establishes connections and subscriptions. It must be safe to call
	// again after a failure or a Close.
	Init(ctx context.Context) error

	// Close releases transport resources.
	Close(ctx context.Context) error

	// SupportedDirection declares which flows the adapter can serve.
	SupportedDirection() Direction

	// Receive writes a message arriving from the opposite endpoint to this
	// endpoint's wire.
	Receive(ctx context.Context, dc *message.DataContext) error

	// Bind attaches the endpoint to its pipeline. entrance tags every context
	// this endpoint creates.
	Bind(d Dispatcher, entrance message.Source)

	// CommunicationMetadata returns the validated configuration.
	CommunicationMetadata() CommunicationMetadata
}

type binding struct {
	dispatcher Dispatcher
	entrance   message.Source
}

// BaseCore supplies the parts of CommunicationCore every adapter shares.
// Embed a *BaseCore and override Init, Close and Receive.
type BaseCore[M CommunicationMetadata] struct {
	config    M
	supported Direction
	meta      Metadata
	logger    *slog.Logger

	bound atomic.Pointer[binding]
	state atomic.Int32
}

// NewBaseCore creates the shared endpoint state for an adapter.
func NewBaseCore[M CommunicationMetadata](config M, supported Direction, meta Metadata, deps Dependencies) *BaseCore[M] {
	if meta.Kind == "" {
		meta.Kind = string(config.CommunicationType())
	}
	return &BaseCore[M]{
		config:    config,
		supported: supported,
		meta:      meta,
		logger:    deps.GetLoggerWithComponent(meta.Kind),
	}
}

// Meta describes the endpoint
func (b *BaseCore[M]) Meta() Metadata { return b.meta }

// Config returns the typed configuration
func (b *BaseCore[M]) Config() M { return b.config }

// CommunicationMetadata returns the configuration as its interface
func (b *BaseCore[M]) CommunicationMetadata() CommunicationMetadata { return b.config }

// SupportedDirection declares which flows the adapter can serve
func (b *BaseCore[M]) SupportedDirection() Direction { return b.supported }

// Logger returns the endpoint's component logger
func (b *BaseCore[M]) Logger() *slog.Logger { return b.logger }

// Bind attaches the endpoint to its pipeline
func (b *BaseCore[M]) Bind(d Dispatcher, entrance message.Source) {
	b.bound.Store(&binding{dispatcher: d, entrance: entrance})
}

// Entrance returns the source tag assigned by Bind
func (b *BaseCore[M]) Entrance() message.Source {
	if bd := b.bound.Load(); bd != nil {
		return bd.entrance
	}
	return message.SourceOuter
}

// State returns the lifecycle state
func (b *BaseCore[M]) State() State { return State(b.state.Load()) }

// SetState records a lifecycle transition
func (b *BaseCore[M]) SetState(s State) { b.state.Store(int32(s)) }

// Init is a no-op for adapters without connections
func (b *BaseCore[M]) Init(context.Context) error {
	b.SetState(StateInitialized)
	return nil
}

// Close is a no-op for adapters without connections
func (b *BaseCore[M]) Close(context.Context) error {
	b.SetState(StateClosed)
	return nil
}

// Receive ignores the message. Output-capable adapters override it.
func (b *BaseCore[M]) Receive(context.Context, *message.DataContext) error {
	return nil
}

// CreateData wraps a raw payload tagged with this endpoint as its source.
func (b *BaseCore[M]) CreateData(payload any) *message.DataContext {
	return message.New(b.Entrance(), payload)
}

// Emit wraps payload and dispatches it into the pipeline.
func (b *BaseCore[M]) Emit(ctx context.Context, payload any) (Delivery, error) {
	return b.EmitContext(ctx, b.CreateData(payload))
}

// EmitContext dispatches an already built context into the pipeline.
func (b *BaseCore[M]) EmitContext(ctx context.Context, dc *message.DataContext) (Delivery, error) {
	bd := b.bound.Load()
	if bd == nil {
		return Faulted, errors.WrapInvalid(errors.ErrNotBound, b.meta.Kind, "Emit", "dispatch")
	}
	return bd.dispatcher.Send(ctx, dc), nil
}

// CollectException records a background fault in the owning pipeline's pool.
// Unbound endpoints log the fault instead.
func (b *BaseCore[M]) CollectException(err error, description string) {
	if err == nil {
		return
	}
	if bd := b.bound.Load(); bd != nil {
		bd.dispatcher.CollectException(err, description)
		return
	}
	b.logger.Warn("Endpoint fault before binding", "error", err, "description", description)
}
