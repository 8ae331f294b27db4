// Package nats provides the message queue endpoint. Input subscribes to a
// subject (or a durable JetStream consumer) and emits every message body into
// the pipeline; Output publishes delivered payloads.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/natsclient"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "nats"

// Metadata configures the NATS endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	Subject        string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Queue          string `json:"queue,omitempty" yaml:"queue,omitempty"`
	PublishSubject string `json:"publish_subject,omitempty" yaml:"publish_subject,omitempty"`

	// Stream switches both directions to JetStream: publishes wait for the
	// server ack and input uses a durable consumer.
	Stream  string `json:"stream,omitempty" yaml:"stream,omitempty" validate:"omitempty,excludesall=.*>"`
	Durable string `json:"durable,omitempty" yaml:"durable,omitempty"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "NATSMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate derives the direction from the configured subjects when
// it is not set and checks each direction has its subject.
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeMQ

	if m.Direction == component.DirectionNone {
		if m.Subject != "" {
			m.Direction |= component.DirectionInput
		}
		if m.PublishSubject != "" {
			m.Direction |= component.DirectionOutput
		}
	}
	if m.Direction == component.DirectionNone {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject or publish_subject is required", errors.ErrMissingConfig),
			"NATSMetadata", "EnrichOrValidate", "direction")
	}

	if err := component.RequireTarget("NATSMetadata", m.Direction, component.DirectionInput, "subject", m.Subject); err != nil {
		return err
	}
	if err := component.RequireTarget("NATSMetadata", m.Direction, component.DirectionOutput, "publish_subject", m.PublishSubject); err != nil {
		return err
	}

	if m.Stream != "" && m.Durable == "" && m.Direction.CanInput() {
		m.Durable = m.Stream + "-" + m.name()
	}
	return component.ValidateStruct("NATSMetadata", m)
}

func (m *Metadata) name() string {
	if m.Name != "" {
		return m.Name
	}
	return Kind
}

// NewCore builds the endpoint around the shared client from deps.
func (m *Metadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	client, err := deps.RequireNATS("NATSMetadata")
	if err != nil {
		return nil, err
	}

	desc := "NATS endpoint"
	if m.Stream != "" {
		desc = "NATS JetStream endpoint on " + m.Stream
	}
	return &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInputAndOutput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: desc,
			Version:     "1.0.0",
		}, deps),
		client: client,
	}, nil
}

// Core is the NATS endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	client *natsclient.Client

	mu  sync.Mutex
	sub *natsclient.Subscription
}

// Init connects the shared client and, for input, (re)creates the subscription.
func (c *Core) Init(ctx context.Context) error {
	c.SetState(component.StateInitializing)
	cfg := c.Config()

	if err := c.client.Connect(ctx); err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "NATSCore", "Init", "connect")
	}

	if cfg.Stream != "" {
		subjects := make([]string, 0, 2)
		for _, s := range []string{cfg.Subject, cfg.PublishSubject} {
			if s != "" {
				subjects = append(subjects, s)
			}
		}
		if _, err := c.client.EnsureStream(ctx, cfg.Stream, subjects); err != nil {
			c.SetState(component.StateFailed)
			return errors.WrapTransient(err, "NATSCore", "Init", "ensure stream")
		}
	}

	if cfg.Direction.CanInput() {
		if err := c.subscribe(ctx); err != nil {
			c.SetState(component.StateFailed)
			return err
		}
	}

	c.SetState(component.StateInitialized)
	c.Logger().Info("NATS endpoint ready",
		"subject", cfg.Subject, "publish_subject", cfg.PublishSubject, "stream", cfg.Stream)
	return nil
}

func (c *Core) subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}

	cfg := c.Config()
	// Subscriptions outlive Init; their handlers must not inherit its deadline.
	subCtx := context.WithoutCancel(ctx)

	var (
		sub *natsclient.Subscription
		err error
	)
	if cfg.Stream != "" {
		sub, err = c.client.ConsumeStream(subCtx, cfg.Stream, cfg.Durable, cfg.Subject, c.handle)
	} else {
		sub, err = c.client.Subscribe(subCtx, cfg.Subject, cfg.Queue, c.handle)
	}
	if err != nil {
		return errors.WrapTransient(err, "NATSCore", "Init", "subscribe "+cfg.Subject)
	}
	c.sub = sub
	return nil
}

// handle emits one inbound body. Dispatch faults are already recorded by the
// pipeline, so the message is acknowledged either way.
func (c *Core) handle(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := c.Emit(ctx, data); err != nil {
		c.CollectException(err, "nats emit")
		return nil, err
	}
	return nil, nil
}

// Close drops this endpoint's subscription. The shared client stays open.
func (c *Core) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.sub != nil {
		err = c.sub.Unsubscribe()
		c.sub = nil
	}
	c.SetState(component.StateClosed)
	if err != nil {
		return errors.Wrap(err, "NATSCore", "Close", "unsubscribe")
	}
	return nil
}

// Receive publishes a delivered payload.
func (c *Core) Receive(ctx context.Context, dc *message.DataContext) error {
	cfg := c.Config()
	if !cfg.Direction.CanOutput() {
		return nil
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "NATSCore", "Receive", "encode payload")
	}

	if cfg.Stream != "" {
		err = c.client.PublishToStream(ctx, cfg.PublishSubject, data)
	} else {
		err = c.client.Publish(ctx, cfg.PublishSubject, data)
	}
	if err != nil {
		return errors.WrapTransient(err, "NATSCore", "Receive", "publish "+cfg.PublishSubject)
	}
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	c.mu.Lock()
	subscribed := c.sub != nil
	c.mu.Unlock()

	cfg := c.Config()
	return map[string]any{
		"url":             c.client.URL(),
		"connection":      c.client.Status().String(),
		"subject":         cfg.Subject,
		"publish_subject": cfg.PublishSubject,
		"stream":          cfg.Stream,
		"subscribed":      subscribed,
	}
}

// Register adds the NATS endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeMQ),
		Description: "NATS subject and JetStream endpoint",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
