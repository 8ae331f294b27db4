// Package inproc provides the in-process endpoint. It is the default inner
// endpoint of every pipeline: application code publishes into the pipeline
// with Publish and receives delivered messages through a handler or, when no
// handler is set, from a bounded backlog.
package inproc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/buffer"
)

// Kind is the registry name of this endpoint
const Kind = "inproc"

// DefaultBacklog bounds messages held while no handler is attached.
const DefaultBacklog = 256

// Handler consumes a delivered message. A returned error is recorded as a
// fault of this endpoint.
type Handler func(ctx context.Context, dc *message.DataContext) error

// Metadata configures the in-process endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Backlog int    `json:"backlog,omitempty" yaml:"backlog,omitempty" validate:"gte=0,lte=1000000"`
}

// Default returns bidirectional in-process metadata.
func Default() *Metadata {
	return &Metadata{
		MetadataBase: component.MetadataBase{
			Type:      component.TypeInProcess,
			Direction: component.DirectionInputAndOutput,
		},
	}
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := Default()
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "InProcMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeInProcess
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInputAndOutput
	}
	if m.Backlog == 0 {
		m.Backlog = DefaultBacklog
	}
	return component.ValidateStruct("InProcMetadata", m)
}

// NewCore builds the endpoint
func (m *Metadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	backlog, err := buffer.NewCircularBuffer[*message.DataContext](m.Backlog,
		buffer.WithOverflowPolicy[*message.DataContext](buffer.DropOldest))
	if err != nil {
		return nil, errors.Wrap(err, "InProcMetadata", "NewCore", "backlog allocation")
	}

	name := m.Name
	if name == "" {
		name = Kind
	}
	return &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInputAndOutput, component.Metadata{
			Name:        name,
			Kind:        Kind,
			Description: "In-process endpoint for application code",
			Version:     "1.0.0",
		}, deps),
		backlog: backlog,
	}, nil
}

// Core is the in-process endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	mu      sync.RWMutex
	handler Handler
	backlog buffer.Buffer[*message.DataContext]
}

// OnReceive attaches the handler for delivered messages. Messages held in
// the backlog are replayed to it first.
func (c *Core) OnReceive(ctx context.Context, h Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	if h == nil {
		return nil
	}

	var errs []error
	for {
		dc, ok := c.backlog.Read()
		if !ok {
			break
		}
		if err := h(ctx, dc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Receive hands a delivered message to the handler or queues it.
func (c *Core) Receive(ctx context.Context, dc *message.DataContext) error {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h != nil {
		return h(ctx, dc)
	}
	if err := c.backlog.Write(dc); err != nil {
		return errors.Wrap(err, "InProcCore", "Receive", "backlog write")
	}
	return nil
}

// Drain removes up to max queued messages, oldest first.
func (c *Core) Drain(max int) []*message.DataContext {
	return c.backlog.ReadBatch(max)
}

// Pending returns the number of queued messages
func (c *Core) Pending() int {
	return c.backlog.Size()
}

// Publish sends payload from application code into the pipeline.
func (c *Core) Publish(ctx context.Context, payload any) (component.Delivery, error) {
	return c.Emit(ctx, payload)
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	stats := c.backlog.Stats()
	return map[string]any{
		"pending":       c.backlog.Size(),
		"backlog":       c.backlog.Capacity(),
		"backlog_drops": stats.Drops(),
	}
}

// Register adds the in-process endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeInProcess),
		Description: "In-process endpoint for application code",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
