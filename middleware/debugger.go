package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/buffer"
)

// DefaultDebugQueue is the capture capacity used when none is configured.
const DefaultDebugQueue = 100

// DebugMessage is one captured message.
type DebugMessage struct {
	Timestamp   time.Time      `json:"timestamp"`
	Source      message.Source `json:"source"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DebuggerConfig configures a Debugger.
type DebuggerConfig struct {
	Name     string `json:"name" validate:"omitempty,max=128"`
	Active   bool   `json:"active"`
	Filter   string `json:"filter" validate:"max=256"`
	MaxQueue int    `json:"max_queue" validate:"gte=0,lte=100000"`
}

// Debugger is a monitor middleware capturing formatted messages into a
// bounded queue while active. A non-empty filter keeps only messages whose
// formatted content contains it, ignoring case.
type Debugger struct {
	name   string
	board  *InfoBoard
	active atomic.Bool

	mu     sync.RWMutex
	filter string
	queue  buffer.Buffer[DebugMessage]
}

var _ component.MonitorMiddleware = (*Debugger)(nil)

// NewDebugger creates an inactive debugger holding up to maxQueue messages.
func NewDebugger(name string, maxQueue int) *Debugger {
	if name == "" {
		name = "debugger"
	}
	if maxQueue <= 0 {
		maxQueue = DefaultDebugQueue
	}
	d := &Debugger{name: name, board: NewInfoBoard(), queue: newDebugQueue(maxQueue)}
	d.board.Set("active", false)
	d.board.Set("max_queue", int64(maxQueue))
	d.board.Set("filter", "")
	d.board.Set("captured", int64(0))
	return d
}

// CreateDebugger is the registry factory
func CreateDebugger(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
	var cfg DebuggerConfig
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "Debugger", "Create", "config decode")
	}
	if err := component.ValidateStruct("Debugger", &cfg); err != nil {
		return nil, err
	}
	d := NewDebugger(cfg.Name, cfg.MaxQueue)
	d.SetFilter(cfg.Filter)
	d.SetActive(cfg.Active)
	return d, nil
}

func newDebugQueue(capacity int) buffer.Buffer[DebugMessage] {
	// construction only fails when metrics registration is requested
	q, _ := buffer.NewCircularBuffer(capacity, buffer.WithOverflowPolicy[DebugMessage](buffer.DropOldest))
	return q
}

// Meta describes the debugger
func (d *Debugger) Meta() component.Metadata {
	return component.Metadata{Name: d.name, Kind: "debugger", Description: "Captures messages for inspection", Version: "1.0.0"}
}

// SetActive turns capturing on or off
func (d *Debugger) SetActive(active bool) {
	d.active.Store(active)
	d.board.Set("active", active)
	d.board.Set("status_changed_at", time.Now())
}

// IsActive reports whether messages are captured
func (d *Debugger) IsActive() bool { return d.active.Load() }

// SetFilter sets the capture keyword. Empty captures everything.
func (d *Debugger) SetFilter(keyword string) {
	d.mu.Lock()
	d.filter = keyword
	d.mu.Unlock()
	d.board.Set("filter", keyword)
}

// Filter returns the capture keyword
func (d *Debugger) Filter() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

// SetMaxQueue resizes the capture queue keeping the newest messages.
func (d *Debugger) SetMaxQueue(n int) {
	if n < 1 {
		n = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	held := d.queue.Snapshot()
	if len(held) > n {
		held = held[len(held)-n:]
	}
	q := newDebugQueue(n)
	for _, m := range held {
		_ = q.Write(m)
	}
	d.queue = q
	d.board.Set("max_queue", int64(n))
	d.board.Set("captured", int64(q.Size()))
}

// Observe captures dc when active and matching the filter
func (d *Debugger) Observe(_ context.Context, dc *message.DataContext) {
	if !d.active.Load() {
		return
	}

	content := formatPayload(dc.Data)
	if !d.matches(content) {
		return
	}

	msg := DebugMessage{
		Timestamp:   time.Now(),
		Source:      dc.Source,
		Content:     content,
		MessageType: dc.TypeName(),
		Metadata:    maps.Clone(dc.Metadata),
	}

	d.mu.RLock()
	_ = d.queue.Write(msg)
	size := d.queue.Size()
	d.mu.RUnlock()

	d.board.Set("captured", int64(size))
	d.board.Set("last_captured_at", msg.Timestamp)
}

func (d *Debugger) matches(content string) bool {
	keyword := d.Filter()
	if strings.TrimSpace(keyword) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}

// Messages returns the captured messages, oldest first
func (d *Debugger) Messages() []DebugMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue.Snapshot()
}

// Clear drops every captured message
func (d *Debugger) Clear() {
	d.mu.RLock()
	d.queue.Clear()
	d.mu.RUnlock()
	d.board.Set("captured", int64(0))
	d.board.Set("cleared_at", time.Now())
}

// Describe returns the debugger board
func (d *Debugger) Describe() map[string]any {
	return d.board.Snapshot()
}

// formatPayload renders a payload as JSON where possible. Byte payloads
// holding UTF-8 text are shown as text.
func formatPayload(data any) string {
	switch v := data.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		if utf8.Valid(v) {
			return string(v)
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%T formatting failed: %v", data, err)
	}
	return string(b)
}
