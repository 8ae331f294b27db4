package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		status  Status
		want    string
		healthy bool
	}{
		{NewHealthy("orders", "ok"), StateHealthy, true},
		{NewDegraded("orders", "slow"), StateDegraded, false},
		{NewUnhealthy("orders", "down"), StateUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, "orders", tt.status.Component)
			assert.Equal(t, tt.want, tt.status.Status)
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.Equal(t, tt.want == StateHealthy, tt.status.IsHealthy())
			assert.Equal(t, tt.want == StateDegraded, tt.status.IsDegraded())
			assert.Equal(t, tt.want == StateUnhealthy, tt.status.IsUnhealthy())
			assert.False(t, tt.status.Timestamp.IsZero())
		})
	}
}

func TestStatus_UnknownState(t *testing.T) {
	s := Status{Status: "rebooting"}
	assert.False(t, s.IsHealthy())
	assert.False(t, s.IsDegraded())
	assert.False(t, s.IsUnhealthy())
}

func TestStatus_WithMetrics(t *testing.T) {
	base := NewHealthy("orders", "ok")
	m := &Metrics{Uptime: time.Minute, ErrorCount: 3}

	withMetrics := base.WithMetrics(m)
	assert.Nil(t, base.Metrics)
	assert.Same(t, m, withMetrics.Metrics)
}

func TestStatus_WithSubStatus(t *testing.T) {
	parent := NewHealthy("parent", "")
	parent.SubStatuses = []Status{{Component: "child1", Status: StateHealthy}}

	modified := parent.WithSubStatus(Status{Component: "child2", Status: StateUnhealthy})

	require.Len(t, parent.SubStatuses, 1)
	require.Len(t, modified.SubStatuses, 2)
	assert.Equal(t, "child2", modified.SubStatuses[1].Component)

	parent.SubStatuses[0].Status = StateDegraded
	assert.Equal(t, StateHealthy, modified.SubStatuses[0].Status)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Status
		want    string
		message string
	}{
		{"empty", nil, StateHealthy, "Nothing to aggregate"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy, "2 healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded, "1 of 2 degraded"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StateUnhealthy, "1 of 3 unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("datachannel", tt.subs)
			assert.Equal(t, "datachannel", agg.Component)
			assert.Equal(t, tt.want, agg.Status)
			assert.Equal(t, tt.message, agg.Message)
			assert.Len(t, agg.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	agg := Aggregate("system", subs)

	subs[0].Status = StateUnhealthy
	require.Len(t, agg.SubStatuses, 1)
	assert.Equal(t, StateHealthy, agg.SubStatuses[0].Status)
}

func TestFromChannel(t *testing.T) {
	tests := []struct {
		name        string
		state       ChannelState
		wantStatus  string
		wantMessage string
	}{
		{
			name:        "ready",
			state:       ChannelState{ID: "orders", Status: "ready", Uptime: time.Hour},
			wantStatus:  StateHealthy,
			wantMessage: "Channel ready",
		},
		{
			name:        "ready with exceptions",
			state:       ChannelState{ID: "orders", Status: "ready", ExceptionCount: 2, LastError: "conversion failed"},
			wantStatus:  StateDegraded,
			wantMessage: "conversion failed",
		},
		{
			name:        "initializing",
			state:       ChannelState{ID: "orders", Status: "initializing"},
			wantStatus:  StateDegraded,
			wantMessage: "Channel initializing",
		},
		{
			name:        "not available",
			state:       ChannelState{ID: "orders", Status: "not_available", ExceptionCount: 1, LastError: "dial failed"},
			wantStatus:  StateUnhealthy,
			wantMessage: "dial failed",
		},
		{
			name:        "closed",
			state:       ChannelState{ID: "orders", Status: "closed"},
			wantStatus:  StateUnhealthy,
			wantMessage: "Channel closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromChannel(tt.state)

			assert.Equal(t, tt.state.ID, got.Component)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantStatus == StateHealthy, got.Healthy)
			assert.Equal(t, tt.wantMessage, got.Message)
			require.NotNil(t, got.Metrics)
			assert.Equal(t, tt.state.ExceptionCount, got.Metrics.ErrorCount)
			assert.Equal(t, tt.state.Uptime, got.Metrics.Uptime)
		})
	}
}

func TestFromChannel_RedactsError(t *testing.T) {
	got := FromChannel(ChannelState{
		ID:        "telemetry",
		Status:    "not_available",
		LastError: "connect to nats://10.0.0.5:4222 refused",
	})
	assert.Equal(t, "connect to [URL] refused", got.Message)
}
