package nats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/natsclient"
)

func TestEnrichOrValidate_DerivesDirection(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want component.Direction
	}{
		{"subject only", Metadata{Subject: "in"}, component.DirectionInput},
		{"publish only", Metadata{PublishSubject: "out"}, component.DirectionOutput},
		{"both", Metadata{Subject: "in", PublishSubject: "out"}, component.DirectionInputAndOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := tt.md
			require.NoError(t, md.EnrichOrValidate())
			assert.Equal(t, tt.want, md.Direction)
			assert.Equal(t, component.TypeMQ, md.Type)
		})
	}
}

func TestEnrichOrValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
	}{
		{"no subjects", Metadata{}},
		{"output without publish subject", Metadata{
			MetadataBase: component.MetadataBase{Direction: component.DirectionOutput},
			Subject:      "in",
		}},
		{"input without subject", Metadata{
			MetadataBase:   component.MetadataBase{Direction: component.DirectionInput},
			PublishSubject: "out",
		}},
		{"stream name with dot", Metadata{Subject: "in", Stream: "bad.name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := tt.md
			err := md.EnrichOrValidate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestEnrichOrValidate_DefaultsDurable(t *testing.T) {
	md := Metadata{Name: "orders", Subject: "orders.>", Stream: "ORDERS"}
	require.NoError(t, md.EnrichOrValidate())
	assert.Equal(t, "ORDERS-orders", md.Durable)
}

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(json.RawMessage(`{"subject":"a.b","direction":"input","queue":"q"}`))
	require.NoError(t, err)

	nm := md.(*Metadata)
	assert.Equal(t, "a.b", nm.Subject)
	assert.Equal(t, "q", nm.Queue)
	assert.Equal(t, component.DirectionInput, nm.Direction)

	_, err = ParseMetadata(json.RawMessage(`{"topic":"a"}`))
	assert.Error(t, err)
}

func TestNewCore_RequiresClient(t *testing.T) {
	md := &Metadata{Subject: "a"}
	require.NoError(t, md.EnrichOrValidate())

	_, err := md.NewCore(component.Dependencies{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestCore_ReceiveWithoutConnection(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:1")
	require.NoError(t, err)

	md := &Metadata{PublishSubject: "out"}
	require.NoError(t, md.EnrichOrValidate())
	core, err := md.NewCore(component.Dependencies{NATSClient: client})
	require.NoError(t, err)

	err = core.Receive(context.Background(), message.New(message.SourceInner, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, natsclient.ErrNotConnected)
	assert.True(t, errors.IsTransient(err))

	desc := core.(component.Describer).Describe()
	assert.Equal(t, "disconnected", desc["connection"])
	assert.Equal(t, false, desc["subscribed"])
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	md, err := registry.CreateMetadata(Kind, json.RawMessage(`{"publish_subject":"out"}`))
	require.NoError(t, err)
	assert.IsType(t, &Metadata{}, md)
}
