package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// Counter board keys
const (
	KeyTotal         = "total_messages"
	KeyInput         = "input_messages"
	KeyOutput        = "output_messages"
	KeyErrors        = "error_messages"
	KeyLastProcessed = "last_processed"
)

// CounterConfig configures a Counter.
type CounterConfig struct {
	Name string `json:"name" validate:"omitempty,max=128"`
}

// Counter is a monitor middleware counting messages by source. Messages
// whose payload mentions "error", or that carry an error or exception
// metadata key, are also counted as error messages.
type Counter struct {
	name  string
	board *InfoBoard
	vec   *prometheus.CounterVec
}

var _ component.MonitorMiddleware = (*Counter)(nil)

// NewCounter creates a counter without Prometheus export
func NewCounter(name string) *Counter {
	if name == "" {
		name = "counter"
	}
	c := &Counter{name: name, board: NewInfoBoard()}
	c.board.Set("version", "1.0.0")
	c.board.Set("description", "Message counter")
	return c
}

// CreateCounter is the registry factory. With a metrics registry the counts
// are also exported as datachannel_middleware_messages_total.
func CreateCounter(raw json.RawMessage, deps component.Dependencies) (component.Component, error) {
	var cfg CounterConfig
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "Counter", "Create", "config decode")
	}
	if err := component.ValidateStruct("Counter", &cfg); err != nil {
		return nil, err
	}

	c := NewCounter(cfg.Name)
	if deps.MetricsRegistry != nil {
		c.vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "datachannel",
			Subsystem:   "middleware",
			Name:        "messages_total",
			Help:        "Messages observed by counter middleware",
			ConstLabels: prometheus.Labels{"middleware": c.name},
		}, []string{"source", "kind"})
		if err := deps.MetricsRegistry.RegisterCounterVec(c.name, "messages_total", c.vec); err != nil {
			return nil, errors.Wrap(err, "Counter", "Create", "metrics registration")
		}
	}
	return c, nil
}

// Meta describes the counter
func (c *Counter) Meta() component.Metadata {
	return component.Metadata{Name: c.name, Kind: "counter", Description: "Counts messages by source", Version: "1.0.0"}
}

// Observe counts dc
func (c *Counter) Observe(_ context.Context, dc *message.DataContext) {
	c.board.Increment(KeyTotal, 1)
	switch dc.Source {
	case message.SourceOuter:
		c.board.Increment(KeyInput, 1)
	case message.SourceInner:
		c.board.Increment(KeyOutput, 1)
	}
	c.board.Set(KeyLastProcessed, time.Now())

	kind := "ok"
	if isErrorMessage(dc) {
		c.board.Increment(KeyErrors, 1)
		kind = "error"
	}
	if c.vec != nil {
		c.vec.WithLabelValues(dc.Source.String(), kind).Inc()
	}
}

// Total returns the number of observed messages
func (c *Counter) Total() int64 { return c.board.Int(KeyTotal) }

// Input returns the number of messages from the outer endpoint
func (c *Counter) Input() int64 { return c.board.Int(KeyInput) }

// Output returns the number of messages from the inner endpoint
func (c *Counter) Output() int64 { return c.board.Int(KeyOutput) }

// Errors returns the number of error messages
func (c *Counter) Errors() int64 { return c.board.Int(KeyErrors) }

// MessagesPerMinute returns the observation rate since creation or Reset
func (c *Counter) MessagesPerMinute() float64 { return c.board.perMinute(KeyTotal) }

// Reset zeroes every counter
func (c *Counter) Reset() {
	for _, k := range []string{KeyTotal, KeyInput, KeyOutput, KeyErrors} {
		c.board.Reset(k)
	}
	c.board.Set("reset_at", time.Now())
}

// Describe returns the counter board
func (c *Counter) Describe() map[string]any {
	info := c.board.Snapshot()
	info["messages_per_minute"] = c.MessagesPerMinute()
	return info
}

func isErrorMessage(dc *message.DataContext) bool {
	if strings.Contains(strings.ToLower(payloadText(dc.Data)), "error") {
		return true
	}
	for k := range dc.Metadata {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "error") || strings.Contains(lk, "exception") {
			return true
		}
	}
	return false
}

// payloadText renders a payload for content inspection.
func payloadText(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}
