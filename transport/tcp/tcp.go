// Package tcp provides the TCP server endpoint. Every accepted connection is
// read frame by frame and each frame is emitted with the connection's name in
// its metadata. Outbound payloads go to the connection named in the context,
// or to every open connection when none is named.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/retry"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "tcp"

// MetaConnection is the metadata key naming the connection a frame arrived
// on or should be written to.
const MetaConnection = "connection"

// Framing selects how frames are delimited on the stream.
type Framing string

const (
	// FramingLine delimits frames with '\n'. A trailing '\r' is stripped.
	FramingLine Framing = "line"
	// FramingLength prefixes every frame with its length as a big-endian uint32.
	FramingLength Framing = "length"
)

// Defaults
const (
	DefaultMaxFrame       = 1 << 20
	DefaultMaxConnections = 100
)

// Metadata configures the TCP server endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name           string  `json:"name,omitempty" yaml:"name,omitempty"`
	Listen         string  `json:"listen" yaml:"listen"`
	Framing        Framing `json:"framing,omitempty" yaml:"framing,omitempty" validate:"oneof=line length"`
	MaxFrame       int     `json:"max_frame,omitempty" yaml:"max_frame,omitempty" validate:"gte=0,lte=67108864"`
	MaxConnections int     `json:"max_connections,omitempty" yaml:"max_connections,omitempty" validate:"gte=0"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "TCPMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeTCP
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInputAndOutput
	}
	if m.Framing == "" {
		m.Framing = FramingLine
	}
	if m.MaxFrame == 0 {
		m.MaxFrame = DefaultMaxFrame
	}
	if m.MaxConnections == 0 {
		m.MaxConnections = DefaultMaxConnections
	}
	if m.Listen == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: listen", errors.ErrMissingConfig), "TCPMetadata", "EnrichOrValidate", "listen check")
	}
	if err := wire.ValidateAddr("TCPMetadata", "listen", m.Listen); err != nil {
		return err
	}
	return component.ValidateStruct("TCPMetadata", m)
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
			Description: fmt.Sprintf("TCP server on %s (%s framing)", m.Listen, m.Framing),
			Version:     "1.0.0",
		}, deps),
		conns: make(map[string]*conn),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

type conn struct {
	net.Conn
	wmu sync.Mutex
}

// Core is the TCP server endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	metrics *wire.Metrics

	mu    sync.RWMutex
	ln    net.Listener
	conns map[string]*conn
	wg    sync.WaitGroup
}

// Init starts listening. Previously accepted connections are dropped.
func (c *Core) Init(ctx context.Context) error {
	c.SetState(component.StateInitializing)
	c.stop()

	cfg := c.Config()
	ln, err := retry.DoWithResult(ctx, retry.Quick(), func() (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", cfg.Listen)
	})
	if err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "TCPCore", "Init", "listen "+cfg.Listen)
	}

	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	c.wg.Add(1)
	go c.acceptLoop(ln)

	c.SetState(component.StateInitialized)
	c.Logger().Info("TCP server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Init.
func (c *Core) Addr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Connections returns the sorted names of open connections.
func (c *Core) Connections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.conns))
	for name := range c.conns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Backoff between failed Accept calls.
const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

func (c *Core) acceptLoop(ln net.Listener) {
	defer c.wg.Done()

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.CollectException(errors.WrapTransient(err, "TCPCore", "acceptLoop", "accept"), "tcp accept")
			delay = min(max(2*delay, acceptBackoffMin), acceptBackoffMax)
			time.Sleep(delay)
			continue
		}
		delay = 0

		name := nc.RemoteAddr().String()
		cn := &conn{Conn: nc}

		c.mu.Lock()
		// stop clears c.ln under this lock, so a connection accepted
		// while stopping is never left out of its snapshot.
		if c.ln != ln {
			c.mu.Unlock()
			_ = nc.Close()
			return
		}
		if len(c.conns) >= c.Config().MaxConnections {
			c.mu.Unlock()
			c.Logger().Warn("Connection limit reached", "remote", name)
			_ = nc.Close()
			continue
		}
		c.conns[name] = cn
		c.mu.Unlock()

		c.Logger().Debug("Connection accepted", "remote", name)
		c.wg.Add(1)
		go c.serve(name, cn)
	}
}

func (c *Core) serve(name string, cn *conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.conns[name] == cn {
			delete(c.conns, name)
		}
		c.mu.Unlock()
		_ = cn.Close()
	}()

	cfg := c.Config()
	err := readFrames(cn, cfg.Framing, cfg.MaxFrame, func(frame []byte) {
		c.metrics.Received(len(frame))
		dc := c.CreateData(frame)
		dc.Set(MetaConnection, name)
		if _, err := c.EmitContext(context.Background(), dc); err != nil {
			c.CollectException(err, "tcp emit")
		}
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		c.metrics.Error()
		c.CollectException(errors.WrapTransient(err, "TCPCore", "serve", "read "+name), "tcp read")
	}
}

// readFrames calls emit for every frame until EOF or a read error.
func readFrames(r io.Reader, framing Framing, maxFrame int, emit func([]byte)) error {
	if framing == FramingLength {
		br := bufio.NewReader(r)
		var header [4]byte
		for {
			if _, err := io.ReadFull(br, header[:]); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			size := binary.BigEndian.Uint32(header[:])
			if int64(size) > int64(maxFrame) {
				return fmt.Errorf("frame of %d bytes exceeds limit %d", size, maxFrame)
			}
			frame := make([]byte, size)
			if _, err := io.ReadFull(br, frame); err != nil {
				return err
			}
			emit(frame)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxFrame)
	for scanner.Scan() {
		line := scanner.Bytes()
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		emit(wire.Copy(line))
	}
	return scanner.Err()
}

func writeFrame(w io.Writer, framing Framing, data []byte) error {
	if framing == FramingLength {
		buf := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(buf, uint32(len(data)))
		copy(buf[4:], data)
		_, err := w.Write(buf)
		return err
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

func (c *Core) stop() {
	c.mu.Lock()
	ln := c.ln
	c.ln = nil
	conns := make([]*conn, 0, len(c.conns))
	for _, cn := range c.conns {
		conns = append(conns, cn)
	}
	c.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, cn := range conns {
		_ = cn.Close()
	}
	c.wg.Wait()
}

// Close stops listening, closes every connection and waits for the readers.
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Receive writes the payload as one frame to the named connection, or to
// every connection.
func (c *Core) Receive(_ context.Context, dc *message.DataContext) error {
	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "TCPCore", "Receive", "encode payload")
	}
	framing := c.Config().Framing

	var targets []*conn
	c.mu.RLock()
	if v, ok := dc.Get(MetaConnection); ok {
		name, _ := v.(string)
		cn, found := c.conns[name]
		if !found {
			c.mu.RUnlock()
			return errors.WrapTransient(
				fmt.Errorf("%w: %s", errors.ErrConnectionLost, name), "TCPCore", "Receive", "connection lookup")
		}
		targets = append(targets, cn)
	} else {
		for _, cn := range c.conns {
			targets = append(targets, cn)
		}
	}
	c.mu.RUnlock()

	var errs []error
	for _, cn := range targets {
		cn.wmu.Lock()
		err := writeFrame(cn, framing, data)
		cn.wmu.Unlock()
		if err != nil {
			c.metrics.Error()
			errs = append(errs, errors.WrapTransient(err, "TCPCore", "Receive", "write "+cn.RemoteAddr().String()))
			continue
		}
		c.metrics.Sent(len(data))
	}
	return errors.Join(errs...)
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	addr := ""
	if a := c.Addr(); a != nil {
		addr = a.String()
	}
	return map[string]any{
		"listen":      addr,
		"framing":     string(c.Config().Framing),
		"connections": c.Connections(),
	}
}

// Register adds the TCP server endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeTCP),
		Description: "TCP server with line or length-prefixed framing",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
