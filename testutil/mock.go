package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/message"
)

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockTimeout    = errors.New("mock operation timed out")
	ErrMockInvalid    = errors.New("mock invalid input")
	ErrMockConnection = errors.New("mock connection error")
)

// MockKind is the registry name used by RegisterMock
const MockKind = "mock"

// MockMetadata configures a MockCore.
type MockMetadata struct {
	component.MetadataBase

	Name      string              `json:"name"`
	Supported component.Direction `json:"supported,omitempty"`

	// ValidateErr is returned by EnrichOrValidate.
	ValidateErr error `json:"-"`
	// Configure runs on the core right after NewCore.
	Configure func(*MockCore) `json:"-"`

	Core      *MockCore `json:"-"`
	Validated int       `json:"-"`
}

// NewMockMetadata creates metadata for a mock endpoint supporting every direction.
func NewMockMetadata(name string, dir component.Direction) *MockMetadata {
	return &MockMetadata{
		MetadataBase: component.MetadataBase{Type: component.TypeInProcess, Direction: dir},
		Name:         name,
		Supported:    component.DirectionInputAndOutput,
	}
}

// EnrichOrValidate counts calls and returns ValidateErr
func (m *MockMetadata) EnrichOrValidate() error {
	m.Validated++
	if m.Type == "" {
		m.Type = component.TypeInProcess
	}
	return m.ValidateErr
}

// NewCore creates the mock endpoint and stores it in m.Core
func (m *MockMetadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	core := &MockCore{
		BaseCore: component.NewBaseCore(m, m.Supported, component.Metadata{
			Name:        m.Name,
			Kind:        MockKind,
			Description: "Mock endpoint for testing",
		}, deps),
	}
	if m.Configure != nil {
		m.Configure(core)
	}
	m.Core = core
	return core, nil
}

// ParseMockMetadata is an EndpointFactory for MockMetadata.
func ParseMockMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := NewMockMetadata("", component.DirectionInputAndOutput)
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, err
	}
	return md, nil
}

// RegisterMock adds the mock endpoint kind to registry.
func RegisterMock(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        MockKind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeInProcess),
		Description: "Mock endpoint for testing",
		Version:     "test",
		Endpoint:    ParseMockMetadata,
	})
}

// MockCore is an endpoint that records lifecycle calls and received messages.
type MockCore struct {
	*component.BaseCore[*MockMetadata]

	mu sync.Mutex

	InitFunc    func(ctx context.Context) error
	CloseFunc   func(ctx context.Context) error
	ReceiveFunc func(ctx context.Context, dc *message.DataContext) error

	received   []*message.DataContext
	initCalls  int
	closeCalls int
}

// Init records the call and runs InitFunc
func (m *MockCore) Init(ctx context.Context) error {
	m.mu.Lock()
	m.initCalls++
	fn := m.InitFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			m.SetState(component.StateFailed)
			return err
		}
	}
	m.SetState(component.StateInitialized)
	return nil
}

// Close records the call and runs CloseFunc
func (m *MockCore) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closeCalls++
	fn := m.CloseFunc
	m.mu.Unlock()

	m.SetState(component.StateClosed)
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Receive stores dc and runs ReceiveFunc
func (m *MockCore) Receive(ctx context.Context, dc *message.DataContext) error {
	m.mu.Lock()
	m.received = append(m.received, dc)
	fn := m.ReceiveFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, dc)
	}
	return nil
}

// SetInitFunc replaces InitFunc under the lock
func (m *MockCore) SetInitFunc(fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitFunc = fn
}

// Received returns every message handed to this endpoint
func (m *MockCore) Received() []*message.DataContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*message.DataContext, len(m.received))
	copy(out, m.received)
	return out
}

// InitCalls returns how often Init ran
func (m *MockCore) InitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls
}

// CloseCalls returns how often Close ran
func (m *MockCore) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// TransformFunc adapts a function to component.TransformMiddleware.
type TransformFunc struct {
	Name string
	Fn   func(dc *message.DataContext) (*message.DataContext, error)
}

// Meta describes the middleware
func (t *TransformFunc) Meta() component.Metadata {
	return component.Metadata{Name: t.Name, Kind: "transform_func"}
}

// Pass runs Fn
func (t *TransformFunc) Pass(dc *message.DataContext) (*message.DataContext, error) {
	return t.Fn(dc)
}

// HandlerFunc adapts a function to component.EndpointMiddleware.
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, dc *message.DataContext) (*message.DataContext, error)
}

// Meta describes the middleware
func (h *HandlerFunc) Meta() component.Metadata {
	return component.Metadata{Name: h.Name, Kind: "handler_func"}
}

// Handle runs Fn
func (h *HandlerFunc) Handle(ctx context.Context, dc *message.DataContext) (*message.DataContext, error) {
	return h.Fn(ctx, dc)
}

// ObserverFunc adapts a function to component.MonitorMiddleware.
type ObserverFunc struct {
	Name string
	Fn   func(ctx context.Context, dc *message.DataContext)
}

// Meta describes the middleware
func (o *ObserverFunc) Meta() component.Metadata {
	return component.Metadata{Name: o.Name, Kind: "observer_func"}
}

// Observe runs Fn
func (o *ObserverFunc) Observe(ctx context.Context, dc *message.DataContext) {
	o.Fn(ctx, dc)
}

// Recorder collects contexts from concurrent callers.
type Recorder struct {
	mu   sync.Mutex
	seen []*message.DataContext
}

// Record stores dc
func (r *Recorder) Record(_ context.Context, dc *message.DataContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, dc)
}

// Seen returns a copy of the recorded contexts
func (r *Recorder) Seen() []*message.DataContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*message.DataContext, len(r.seen))
	copy(out, r.seen)
	return out
}
