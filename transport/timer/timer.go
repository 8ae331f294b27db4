// Package timer provides the trigger endpoint. It emits one message per tick
// into the pipeline, carrying either a fixed payload or a Tick record.
package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "timer"

// MetaTick is the metadata key holding the 1-based tick number.
const MetaTick = "tick"

// Tick is the payload emitted when no fixed payload is configured.
type Tick struct {
	Name string    `json:"name"`
	Seq  int64     `json:"seq"`
	At   time.Time `json:"at"`
}

// Metadata configures the timer endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Interval  wire.Duration   `json:"interval" yaml:"interval"`
	Payload   json.RawMessage `json:"payload,omitempty" yaml:"payload,omitempty"`
	Immediate bool            `json:"immediate,omitempty" yaml:"immediate,omitempty"`
	MaxTicks  int64           `json:"max_ticks,omitempty" yaml:"max_ticks,omitempty" validate:"gte=0"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "TimerMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate checks the interval
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeTrigger
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInput
	}
	if m.Interval.Std() < time.Millisecond {
		return errors.WrapInvalid(
			fmt.Errorf("%w: interval must be at least 1ms, got %s", errors.ErrInvalidConfig, m.Interval),
			"TimerMetadata", "EnrichOrValidate", "interval check")
	}
	if len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return errors.WrapInvalid(errors.ErrInvalidData, "TimerMetadata", "EnrichOrValidate", "payload check")
	}
	return component.ValidateStruct("TimerMetadata", m)
}

func (m *Metadata) name() string {
	if m.Name != "" {
		return m.Name
	}
	return Kind
}

// NewCore builds the endpoint
func (m *Metadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	return &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: "Trigger every " + m.Interval.String(),
			Version:     "1.0.0",
		}, deps),
	}, nil
}

// Core is the timer endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ticks   atomic.Int64
	lastRun atomic.Int64
}

// Init (re)starts the ticker. The tick count restarts from zero.
func (c *Core) Init(ctx context.Context) error {
	c.stop()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.ticks.Store(0)
	c.wg.Add(1)
	go c.loop(runCtx)

	c.SetState(component.StateInitialized)
	c.Logger().Debug("Timer started", "interval", c.Config().Interval.String())
	return nil
}

func (c *Core) loop(ctx context.Context) {
	defer c.wg.Done()
	cfg := c.Config()

	ticker := time.NewTicker(cfg.Interval.Std())
	defer ticker.Stop()

	if cfg.Immediate && !c.fire(ctx, time.Now()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !c.fire(ctx, now) {
				return
			}
		}
	}
}

// fire emits one tick. It returns false once MaxTicks is reached.
func (c *Core) fire(ctx context.Context, now time.Time) bool {
	cfg := c.Config()
	seq := c.ticks.Add(1)
	c.lastRun.Store(now.UnixNano())

	var payload any = Tick{Name: c.Meta().Name, Seq: seq, At: now.UTC()}
	if len(cfg.Payload) > 0 {
		payload = wire.Copy(cfg.Payload)
	}

	dc := c.CreateData(payload)
	dc.Set(MetaTick, seq)
	if _, err := c.EmitContext(ctx, dc); err != nil {
		c.CollectException(err, "timer emit")
	}
	return cfg.MaxTicks == 0 || seq < cfg.MaxTicks
}

func (c *Core) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Close stops the ticker
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	last := ""
	if ns := c.lastRun.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"interval": c.Config().Interval.String(),
		"ticks":    c.ticks.Load(),
		"last_at":  last,
	}
}

// Register adds the timer endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeTrigger),
		Description: "Periodic trigger",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
