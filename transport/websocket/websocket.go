// Package websocket provides the WebSocket client endpoint. It dials a remote
// server, emits every inbound message into the pipeline and writes delivered
// payloads back over the same connection. Dropped connections are redialed
// with exponential backoff.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/tlsutil"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "websocket"

// MetaMessageType names the WebSocket frame type of an inbound message
// ("text" or "binary").
const MetaMessageType = "ws_message_type"

// MessageType selects the frame type used for outbound payloads.
type MessageType string

const (
	// MessageText sends text frames
	MessageText MessageType = "text"
	// MessageBinary sends binary frames
	MessageBinary MessageType = "binary"
)

func (t MessageType) frame() int {
	if t == MessageBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Defaults
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// ReconnectConfig controls redialing after the connection drops.
type ReconnectConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	MaxRetries      int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0"`
	InitialInterval wire.Duration `json:"initial_interval,omitempty" yaml:"initial_interval,omitempty"`
	MaxInterval     wire.Duration `json:"max_interval,omitempty" yaml:"max_interval,omitempty"`
	Multiplier      float64       `json:"multiplier,omitempty" yaml:"multiplier,omitempty" validate:"gte=0"`
}

// DefaultReconnect returns unlimited reconnects from 1s up to 1m.
func DefaultReconnect() *ReconnectConfig {
	return &ReconnectConfig{
		Enabled:         true,
		InitialInterval: wire.Duration(time.Second),
		MaxInterval:     wire.Duration(time.Minute),
		Multiplier:      2.0,
	}
}

// delay returns the backoff before the given reconnect attempt (1-based).
func (r *ReconnectConfig) delay(attempt int) time.Duration {
	d := r.InitialInterval.Std()
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * r.Multiplier)
		if d >= r.MaxInterval.Std() {
			return r.MaxInterval.Std()
		}
	}
	return min(d, r.MaxInterval.Std())
}

// Metadata configures the WebSocket client endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name         string                `json:"name,omitempty" yaml:"name,omitempty"`
	URL          string                `json:"url" yaml:"url" validate:"required"`
	Headers      map[string]string     `json:"headers,omitempty" yaml:"headers,omitempty"`
	MessageType  MessageType           `json:"message_type,omitempty" yaml:"message_type,omitempty" validate:"oneof=text binary"`
	PingInterval wire.Duration         `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	MaxMessage   int64                 `json:"max_message,omitempty" yaml:"max_message,omitempty" validate:"gte=0"`
	Reconnect    *ReconnectConfig      `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
	TLS          *tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "WebSocketMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeWebSocket
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInputAndOutput
	}
	if m.MessageType == "" {
		m.MessageType = MessageText
	}
	if m.Reconnect == nil {
		m.Reconnect = DefaultReconnect()
	}
	def := DefaultReconnect()
	if m.Reconnect.InitialInterval <= 0 {
		m.Reconnect.InitialInterval = def.InitialInterval
	}
	if m.Reconnect.MaxInterval <= 0 {
		m.Reconnect.MaxInterval = def.MaxInterval
	}
	if m.Reconnect.Multiplier < 1 {
		m.Reconnect.Multiplier = def.Multiplier
	}
	if err := component.ValidateStruct("WebSocketMetadata", m); err != nil {
		return err
	}

	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: url must be ws:// or wss://", errors.ErrInvalidConfig),
			"WebSocketMetadata", "EnrichOrValidate", "url check")
	}
	return nil
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
			Description: "WebSocket client for " + m.URL,
			Version:     "1.0.0",
		}, deps),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

// Core is the WebSocket client endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	metrics *wire.Metrics
	dialer  *websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connects   atomic.Int64
	reconnects atomic.Int64
	received   atomic.Int64
	sent       atomic.Int64
}

// Init dials the server once. A failed dial fails Init; later drops are
// redialed in the background.
func (c *Core) Init(ctx context.Context) error {
	c.SetState(component.StateInitializing)
	c.stop()

	cfg := c.Config()
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
	if cfg.TLS.Enabled() {
		tlsConfig, err := tlsutil.LoadClientConfig(*cfg.TLS)
		if err != nil {
			c.SetState(component.StateFailed)
			return errors.Wrap(err, "WebSocketCore", "Init", "client TLS")
		}
		dialer.TLSClientConfig = tlsConfig
	}
	c.dialer = dialer

	conn, err := c.dial(ctx)
	if err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "WebSocketCore", "Init", "dial "+cfg.URL)
	}

	// The session outlives Init; it must not inherit Init's deadline.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, conn)

	c.SetState(component.StateInitialized)
	c.Logger().Info("WebSocket connected", "url", cfg.URL)
	return nil
}

func (c *Core) dial(ctx context.Context) (*websocket.Conn, error) {
	cfg := c.Config()
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	conn, resp, err := c.dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	if cfg.MaxMessage > 0 {
		conn.SetReadLimit(cfg.MaxMessage)
	}
	c.connects.Add(1)
	return conn, nil
}

// run owns the connection lifecycle: read until the connection drops, then
// redial according to the reconnect policy.
func (c *Core) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	rc := c.Config().Reconnect

	for {
		c.setConn(conn)
		err := c.session(ctx, conn)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.metrics.Error()
		c.CollectException(errors.WrapTransient(err, "WebSocketCore", "run", "connection dropped"), "websocket read")

		if !rc.Enabled {
			c.SetState(component.StateFailed)
			return
		}

		var ok bool
		conn, ok = c.redial(ctx, rc)
		if !ok {
			return
		}
	}
}

func (c *Core) redial(ctx context.Context, rc *ReconnectConfig) (*websocket.Conn, bool) {
	for attempt := 1; rc.MaxRetries == 0 || attempt <= rc.MaxRetries; attempt++ {
		timer := time.NewTimer(rc.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		c.reconnects.Add(1)
		conn, err := c.dial(ctx)
		if err == nil {
			c.Logger().Info("WebSocket reconnected", "attempt", attempt)
			return conn, true
		}
		c.Logger().Debug("WebSocket redial failed", "attempt", attempt, "error", err)
	}

	c.SetState(component.StateFailed)
	c.CollectException(
		errors.WrapTransient(errors.ErrConnectionLost, "WebSocketCore", "redial", "reconnect attempts exhausted"),
		"websocket reconnect")
	return nil, false
}

// session reads until the connection fails. A ping ticker runs alongside
// when configured.
func (c *Core) session(ctx context.Context, conn *websocket.Conn) error {
	cfg := c.Config()

	done := make(chan struct{})
	defer close(done)
	if interval := cfg.PingInterval.Std(); interval > 0 {
		go c.ping(conn, interval, done)
	}

	for {
		frame, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !cfg.Direction.CanInput() {
			continue
		}

		c.received.Add(1)
		c.metrics.Received(len(data))

		dc := c.CreateData(data)
		if frame == websocket.BinaryMessage {
			dc.Set(MetaMessageType, string(MessageBinary))
		} else {
			dc.Set(MetaMessageType, string(MessageText))
		}
		if _, err := c.EmitContext(ctx, dc); err != nil {
			c.CollectException(err, "websocket emit")
		}
	}
}

func (c *Core) ping(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(DefaultWriteTimeout)); err != nil {
				c.Logger().Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Core) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Connected reports whether a connection is currently open.
func (c *Core) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Core) stop() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.wg.Wait()
}

// Close sends a close frame, stops reconnecting and waits for the reader.
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Receive writes the payload as one frame.
func (c *Core) Receive(_ context.Context, dc *message.DataContext) error {
	cfg := c.Config()
	if !cfg.Direction.CanOutput() {
		return nil
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "WebSocketCore", "Receive", "encode payload")
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "WebSocketCore", "Receive", "connection check")
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	err = conn.WriteMessage(cfg.MessageType.frame(), data)
	c.writeMu.Unlock()
	if err != nil {
		c.metrics.Error()
		return errors.WrapTransient(err, "WebSocketCore", "Receive", "write frame")
	}

	c.sent.Add(1)
	c.metrics.Sent(len(data))
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	return map[string]any{
		"url":        c.Config().URL,
		"connected":  c.Connected(),
		"connects":   c.connects.Load(),
		"reconnects": c.reconnects.Load(),
		"received":   c.received.Load(),
		"sent":       c.sent.Load(),
	}
}

// Register adds the WebSocket endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeWebSocket),
		Description: "WebSocket client with automatic reconnect",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
