package engine

import (
	"context"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/health"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pipeline"
)

// Channel is a named handle over one built pipeline.
type Channel struct {
	pipeline *pipeline.Pipeline
	builtAt  time.Time
}

func newChannel(p *pipeline.Pipeline) *Channel {
	return &Channel{pipeline: p, builtAt: time.Now()}
}

// ID returns the channel id
func (c *Channel) ID() string { return c.pipeline.ID() }

// GroupID returns the group the channel was declared in
func (c *Channel) GroupID() string { return c.pipeline.GroupID() }

// Pipeline returns the underlying pipeline
func (c *Channel) Pipeline() *pipeline.Pipeline { return c.pipeline }

// Send dispatches dc through the channel.
func (c *Channel) Send(ctx context.Context, dc *message.DataContext) component.Delivery {
	return c.pipeline.Send(ctx, dc)
}

// ComponentInfo describes one pipeline component for the monitoring API.
type ComponentInfo struct {
	component.Metadata
	SourceType component.SourceType `json:"source_type"`
	Label      string               `json:"label"`
	Endpoint   string               `json:"endpoint,omitempty"`
	Direction  string               `json:"direction,omitempty"`
	State      string               `json:"state,omitempty"`
	Details    map[string]any       `json:"details,omitempty"`
}

// ChannelStatus is the monitoring view of one channel.
type ChannelStatus struct {
	ID              string          `json:"id"`
	Group           string          `json:"group,omitempty"`
	Status          pipeline.Status `json:"status"`
	Initialized     bool            `json:"initialized"`
	Initializing    bool            `json:"initializing"`
	NotAvailable    bool            `json:"not_available"`
	HasExceptions   bool            `json:"has_exceptions"`
	ExceptionCount  int             `json:"exception_count"`
	TotalExceptions int64           `json:"total_exceptions"`
	Components      []ComponentInfo `json:"components"`
}

// Status snapshots the channel for monitoring.
func (c *Channel) Status() ChannelStatus {
	p := c.pipeline
	pool := p.Exceptions()

	st := ChannelStatus{
		ID:              p.ID(),
		Group:           p.GroupID(),
		Status:          p.Status(),
		Initialized:     p.IsInitialized(),
		Initializing:    p.IsInitializing(),
		NotAvailable:    p.IsNotAvailable(),
		HasExceptions:   pool.HasExceptions(),
		ExceptionCount:  pool.Count(),
		TotalExceptions: pool.TotalCount(),
	}

	st.Components = append(st.Components, describeComponent(p.Outer(), "outer"))
	st.Components = append(st.Components, describeComponent(p.Inner(), "inner"))
	for _, mw := range p.Middlewares() {
		st.Components = append(st.Components, describeComponent(mw, ""))
	}
	return st
}

func describeComponent(c component.Component, endpoint string) ComponentInfo {
	info := ComponentInfo{
		Metadata:   c.Meta(),
		SourceType: component.ClassifySource(c),
		Label:      component.Describe(c),
		Endpoint:   endpoint,
	}
	if core, ok := c.(component.CommunicationCore); ok {
		info.Direction = core.CommunicationMetadata().ConnectionDirection().String()
		if s, ok := c.(interface{ State() component.State }); ok {
			info.State = s.State().String()
		}
	}
	if d, ok := c.(component.Describer); ok {
		info.Details = d.Describe()
	}
	return info
}

// Health maps the channel lifecycle onto a health status.
func (c *Channel) Health() health.Status {
	p := c.pipeline
	pool := p.Exceptions()

	state := health.ChannelState{
		ID:              p.ID(),
		Status:          p.Status().String(),
		ExceptionCount:  pool.Count(),
		TotalExceptions: pool.TotalCount(),
		Uptime:          time.Since(c.builtAt),
	}
	if recent := pool.GetRecentExceptions(1); len(recent) > 0 {
		state.LastError = recent[0].Message
		state.LastActivity = recent[0].Timestamp
	}
	return health.FromChannel(state)
}
