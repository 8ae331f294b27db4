package component

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/c360/datachannel/message"
)

// Metadata describes a pipeline component for monitoring.
type Metadata struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Component is implemented by everything that can sit in a pipeline.
type Component interface {
	Meta() Metadata
}

// TransformMiddleware converts payloads. Pass must be CPU-bound; a returned
// error drops the message and is recorded against this middleware.
type TransformMiddleware interface {
	Component
	Pass(dc *message.DataContext) (*message.DataContext, error)
}

// EndpointMiddleware performs side effects on the way through. Returning a nil
// context stops propagation without an error.
type EndpointMiddleware interface {
	Component
	Handle(ctx context.Context, dc *message.DataContext) (*message.DataContext, error)
}

// MonitorMiddleware observes traffic. It receives a copy of the context.
type MonitorMiddleware interface {
	Component
	Observe(ctx context.Context, dc *message.DataContext)
}

// Initializer is implemented by middleware that needs setup during pipeline Init.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer is implemented by middleware holding resources.
type Closer interface {
	Close(ctx context.Context) error
}

// RouteConfigurer is implemented by adapters exposing inbound HTTP routes.
// ConfigureRoutes is called once, after every pipeline is built and before any
// pipeline is initialized.
type RouteConfigurer interface {
	ConfigureRoutes(r chi.Router) error
}

// Describer exposes live key/value information for the monitoring API.
type Describer interface {
	Describe() map[string]any
}

// SourceType classifies the component an exception came from.
type SourceType string

const (
	SourceEndpoint            SourceType = "endpoint"
	SourceEndpointMiddleware  SourceType = "endpoint_middleware"
	SourceTransformMiddleware SourceType = "transform_middleware"
	SourceMiddleware          SourceType = "middleware"
	SourceUnknown             SourceType = "unknown"
)

// ClassifySource derives the SourceType of c from the capability it declares.
func ClassifySource(c any) SourceType {
	switch c.(type) {
	case nil:
		return SourceUnknown
	case CommunicationCore:
		return SourceEndpoint
	case EndpointMiddleware:
		return SourceEndpointMiddleware
	case TransformMiddleware:
		return SourceTransformMiddleware
	case MonitorMiddleware, Component:
		return SourceMiddleware
	default:
		return SourceUnknown
	}
}

// Describe returns a human-readable label for c.
func Describe(c any) string {
	if comp, ok := c.(Component); ok {
		m := comp.Meta()
		if m.Name != "" {
			return m.Kind + ":" + m.Name
		}
		return m.Kind
	}
	return "unknown"
}
