// Package udp provides the UDP endpoint. Input emits every datagram received
// on the listen address; Output sends payloads to the configured remote, or
// back to the sender named in the context metadata.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/retry"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "udp"

// MetaRemoteAddr is the metadata key holding the sender of an inbound
// datagram. Outbound contexts carrying it are sent to that address.
const MetaRemoteAddr = "remote_addr"

// DefaultMaxDatagram is the default read buffer size
const DefaultMaxDatagram = 65535

// Metadata configures the UDP endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Listen      string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Remote      string `json:"remote,omitempty" yaml:"remote,omitempty"`
	MaxDatagram int    `json:"max_datagram,omitempty" yaml:"max_datagram,omitempty" validate:"gte=0,lte=65535"`
	ReadBuffer  int    `json:"read_buffer,omitempty" yaml:"read_buffer,omitempty" validate:"gte=0"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "UDPMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults. Input needs a listen address; output
// needs a remote unless it only replies to senders on the listen socket.
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeUDP

	if m.Direction == component.DirectionNone {
		if m.Listen != "" {
			m.Direction |= component.DirectionInput
		}
		if m.Remote != "" {
			m.Direction |= component.DirectionOutput
		}
	}
	if m.Direction == component.DirectionNone {
		return errors.WrapInvalid(
			fmt.Errorf("%w: listen or remote is required", errors.ErrMissingConfig),
			"UDPMetadata", "EnrichOrValidate", "direction")
	}
	if err := component.RequireTarget("UDPMetadata", m.Direction, component.DirectionInput, "listen", m.Listen); err != nil {
		return err
	}
	if m.Direction == component.DirectionOutput {
		if err := component.RequireTarget("UDPMetadata", m.Direction, component.DirectionOutput, "remote", m.Remote); err != nil {
			return err
		}
	}

	for field, addr := range map[string]string{"listen": m.Listen, "remote": m.Remote} {
		if err := wire.ValidateAddr("UDPMetadata", field, addr); err != nil {
			return err
		}
	}
	if m.MaxDatagram == 0 {
		m.MaxDatagram = DefaultMaxDatagram
	}
	return component.ValidateStruct("UDPMetadata", m)
}

func (m *Metadata) name() string {
	if m.Name != "" {
		return m.Name
	}
	return Kind
}

// NewCore builds the endpoint
func (m *Metadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	c := &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInputAndOutput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: fmt.Sprintf("UDP endpoint listen=%q remote=%q", m.Listen, m.Remote),
			Version:     "1.0.0",
		}, deps),
		retryConfig: retry.Quick(),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

// Core is the UDP endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	retryConfig retry.Config
	metrics     *wire.Metrics

	mu     sync.RWMutex
	conn   *net.UDPConn
	remote *net.UDPAddr
	wg     sync.WaitGroup

	received atomic.Int64
	sent     atomic.Int64
}

// Init binds the socket, retrying briefly while the port is busy, and starts
// the read loop for input.
func (c *Core) Init(ctx context.Context) error {
	c.SetState(component.StateInitializing)
	c.stop()

	cfg := c.Config()

	var remote *net.UDPAddr
	if cfg.Remote != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.Remote)
		if err != nil {
			c.SetState(component.StateFailed)
			return errors.WrapInvalid(err, "UDPCore", "Init", "resolve remote")
		}
		remote = addr
	}

	listen := cfg.Listen
	if listen == "" {
		listen = ":0"
	}
	conn, err := retry.DoWithResult(ctx, c.retryConfig, func() (*net.UDPConn, error) {
		addr, err := net.ResolveUDPAddr("udp", listen)
		if err != nil {
			return nil, retry.NonRetryable(err)
		}
		return net.ListenUDP("udp", addr)
	})
	if err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "UDPCore", "Init", "bind "+listen)
	}
	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			c.Logger().Warn("Could not set UDP read buffer", "size", cfg.ReadBuffer, "error", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.remote = remote
	c.mu.Unlock()

	if cfg.Direction.CanInput() {
		c.wg.Add(1)
		go c.readLoop(conn)
	}

	c.SetState(component.StateInitialized)
	c.Logger().Info("UDP endpoint ready", "local", conn.LocalAddr().String(), "remote", cfg.Remote)
	return nil
}

// LocalAddr returns the bound socket address, or nil before Init.
func (c *Core) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

func (c *Core) readLoop(conn *net.UDPConn) {
	defer c.wg.Done()

	buf := make([]byte, c.Config().MaxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.metrics.Error()
			c.CollectException(errors.WrapTransient(err, "UDPCore", "readLoop", "read datagram"), "udp read")
			continue
		}

		c.received.Add(1)
		c.metrics.Received(n)

		dc := c.CreateData(wire.Copy(buf[:n]))
		dc.Set(MetaRemoteAddr, addr.String())
		if _, err := c.EmitContext(context.Background(), dc); err != nil {
			c.CollectException(err, "udp emit")
		}
	}
}

func (c *Core) stop() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

// Close closes the socket and waits for the read loop to exit.
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Receive sends the payload as one datagram.
func (c *Core) Receive(_ context.Context, dc *message.DataContext) error {
	if !c.Config().Direction.CanOutput() {
		return nil
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "UDPCore", "Receive", "encode payload")
	}

	c.mu.RLock()
	conn, target := c.conn, c.remote
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "UDPCore", "Receive", "socket check")
	}
	if v, ok := dc.Get(MetaRemoteAddr); ok {
		if s, ok := v.(string); ok {
			addr, err := net.ResolveUDPAddr("udp", s)
			if err != nil {
				return errors.WrapInvalid(err, "UDPCore", "Receive", "resolve reply address")
			}
			target = addr
		}
	}
	if target == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: no remote and no %s metadata", errors.ErrMissingConfig, MetaRemoteAddr),
			"UDPCore", "Receive", "target check")
	}

	if _, err := conn.WriteToUDP(data, target); err != nil {
		c.metrics.Error()
		return errors.WrapTransient(err, "UDPCore", "Receive", "write datagram")
	}
	c.sent.Add(1)
	c.metrics.Sent(len(data))
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	local := ""
	if addr := c.LocalAddr(); addr != nil {
		local = addr.String()
	}
	return map[string]any{
		"local":    local,
		"remote":   c.Config().Remote,
		"received": c.received.Load(),
		"sent":     c.sent.Load(),
	}
}

// Register adds the UDP endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeUDP),
		Description: "UDP datagram listener and sender",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
