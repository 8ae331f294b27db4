// Package serial provides the serial port endpoint. Inbound bytes are split
// into frames on a delimiter and emitted into the pipeline; delivered
// payloads are written to the port followed by the delimiter.
package serial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "serial"

// Defaults
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultMaxFrame = 64 << 10
)

// Port is the subset of serial.Port the endpoint uses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a port. OpenPort is the production implementation.
type Opener func(path string, mode *serial.Mode) (Port, error)

// OpenPort opens a real serial device.
func OpenPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Metadata configures the serial endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Port      string `json:"port" yaml:"port" validate:"required"`
	BaudRate  int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty" validate:"gte=0"`
	DataBits  int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty" validate:"gte=5,lte=8"`
	StopBits  string `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty" validate:"oneof=1 1.5 2"`
	Parity    string `json:"parity,omitempty" yaml:"parity,omitempty" validate:"oneof=none odd even mark space"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty" validate:"max=1"`
	MaxFrame  int    `json:"max_frame,omitempty" yaml:"max_frame,omitempty" validate:"gte=0"`

	// Opener overrides how the port is opened. Tests use it to inject pipes.
	Opener Opener `json:"-" yaml:"-"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "SerialMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults. The default frame delimiter is '\n';
// a trailing '\r' is stripped from inbound frames.
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeSerial
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInputAndOutput
	}
	if m.BaudRate == 0 {
		m.BaudRate = DefaultBaudRate
	}
	if m.DataBits == 0 {
		m.DataBits = DefaultDataBits
	}
	if m.StopBits == "" {
		m.StopBits = "1"
	}
	m.Parity = strings.ToLower(m.Parity)
	if m.Parity == "" {
		m.Parity = "none"
	}
	if m.Delimiter == "" {
		m.Delimiter = "\n"
	}
	if m.MaxFrame == 0 {
		m.MaxFrame = DefaultMaxFrame
	}
	if m.Opener == nil {
		m.Opener = OpenPort
	}
	return component.ValidateStruct("SerialMetadata", m)
}

// Mode converts the settings into a go.bug.st/serial mode.
func (m *Metadata) Mode() *serial.Mode {
	mode := &serial.Mode{BaudRate: m.BaudRate, DataBits: m.DataBits}

	switch m.StopBits {
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch m.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
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
			Description: fmt.Sprintf("Serial port %s at %d baud", m.Port, m.BaudRate),
			Version:     "1.0.0",
		}, deps),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

// Core is the serial endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	metrics *wire.Metrics

	mu      sync.RWMutex
	port    Port
	writeMu sync.Mutex
	wg      sync.WaitGroup

	frames atomic.Int64
	writes atomic.Int64
}

// Init opens the port and starts the reader for input.
func (c *Core) Init(context.Context) error {
	c.SetState(component.StateInitializing)
	c.stop()

	cfg := c.Config()
	port, err := cfg.Opener(cfg.Port, cfg.Mode())
	if err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "SerialCore", "Init", "open "+cfg.Port)
	}

	c.mu.Lock()
	c.port = port
	c.mu.Unlock()

	if cfg.Direction.CanInput() {
		c.wg.Add(1)
		go c.readLoop(port)
	}

	c.SetState(component.StateInitialized)
	c.Logger().Info("Serial port open", "port", cfg.Port, "baud", cfg.BaudRate)
	return nil
}

func (c *Core) readLoop(port Port) {
	defer c.wg.Done()
	cfg := c.Config()

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 1024), cfg.MaxFrame)
	scanner.Split(splitOn(cfg.Delimiter[0]))

	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(frame) == 0 {
			continue
		}
		c.frames.Add(1)
		c.metrics.Received(len(frame))
		if _, err := c.Emit(context.Background(), wire.Copy(frame)); err != nil {
			c.CollectException(err, "serial emit")
		}
	}

	c.mu.RLock()
	current := c.port == port
	c.mu.RUnlock()
	if !current {
		return
	}

	// Not closed by us: the device went away.
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.metrics.Error()
	c.SetState(component.StateFailed)
	c.CollectException(errors.WrapTransient(err, "SerialCore", "readLoop", "read "+cfg.Port), "serial read")
}

// splitOn is a bufio.SplitFunc for frames ending in delim. A '\r' before a
// '\n' delimiter is dropped; a final unterminated frame is returned at EOF.
func splitOn(delim byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexByte(data, delim); i >= 0 {
			return i + 1, trimCR(data[:i], delim), nil
		}
		if atEOF {
			return len(data), trimCR(data, delim), nil
		}
		return 0, nil, nil
	}
}

func trimCR(b []byte, delim byte) []byte {
	if delim == '\n' && len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

func (c *Core) stop() {
	c.mu.Lock()
	port := c.port
	c.port = nil
	c.mu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	c.wg.Wait()
}

// Close closes the port and waits for the reader.
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Receive writes the payload followed by the delimiter.
func (c *Core) Receive(_ context.Context, dc *message.DataContext) error {
	cfg := c.Config()
	if !cfg.Direction.CanOutput() {
		return nil
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "SerialCore", "Receive", "encode payload")
	}

	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()
	if port == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "SerialCore", "Receive", "port check")
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, cfg.Delimiter[0])

	c.writeMu.Lock()
	_, err = port.Write(buf)
	c.writeMu.Unlock()
	if err != nil {
		c.metrics.Error()
		return errors.WrapTransient(err, "SerialCore", "Receive", "write "+cfg.Port)
	}
	c.writes.Add(1)
	c.metrics.Sent(len(buf))
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	c.mu.RLock()
	open := c.port != nil
	c.mu.RUnlock()

	cfg := c.Config()
	return map[string]any{
		"port":   cfg.Port,
		"baud":   cfg.BaudRate,
		"open":   open,
		"frames": c.frames.Load(),
		"writes": c.writes.Load(),
	}
}

// ListPorts returns the serial devices present on this host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "serial", "ListPorts", "enumerate ports")
	}
	return ports, nil
}

// Register adds the serial endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeSerial),
		Description: "Serial port line reader and writer",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
