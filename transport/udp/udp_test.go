package udp

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/transport/inproc"
)

func TestEnrichOrValidate(t *testing.T) {
	md := &Metadata{Listen: "127.0.0.1:0"}
	require.NoError(t, md.EnrichOrValidate())
	assert.Equal(t, component.DirectionInput, md.Direction)
	assert.Equal(t, DefaultMaxDatagram, md.MaxDatagram)
	assert.Equal(t, component.TypeUDP, md.Type)

	md = &Metadata{Listen: "127.0.0.1:0", Remote: "127.0.0.1:9999"}
	require.NoError(t, md.EnrichOrValidate())
	assert.Equal(t, component.DirectionInputAndOutput, md.Direction)
}

func TestEnrichOrValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		md   *Metadata
	}{
		{"nothing configured", &Metadata{}},
		{"bad listen", &Metadata{Listen: "nowhere"}},
		{"output without remote", &Metadata{MetadataBase: component.MetadataBase{Direction: component.DirectionOutput}}},
		{"datagram too large", &Metadata{Listen: ":0", MaxDatagram: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.EnrichOrValidate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(json.RawMessage(`{"listen":"0.0.0.0:14550","direction":"input"}`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:14550", md.(*Metadata).Listen)
}

func buildPipeline(t *testing.T, md *Metadata) (*pipeline.Pipeline, *Core, *inproc.Core) {
	t.Helper()

	p, err := pipeline.NewBuilder("udp-test").Outer(md).Build(component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	return p, p.Outer().(*Core), p.Inner().(*inproc.Core)
}

func TestCore_ReceivesAndReplies(t *testing.T) {
	p, core, inner := buildPipeline(t, &Metadata{
		MetadataBase: component.MetadataBase{Direction: component.DirectionInputAndOutput},
		Listen:       "127.0.0.1:0",
	})

	received := make(chan *message.DataContext, 1)
	require.NoError(t, inner.OnReceive(context.Background(), func(_ context.Context, dc *message.DataContext) error {
		received <- dc
		return nil
	}))

	client, err := net.DialUDP("udp", nil, core.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	var dc *message.DataContext
	select {
	case dc = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not delivered")
	}
	assert.Equal(t, []byte("ping"), dc.Data)
	sender, ok := dc.Get(MetaRemoteAddr)
	require.True(t, ok)
	assert.Equal(t, client.LocalAddr().String(), sender)

	reply := message.New(message.SourceInner, "pong")
	reply.Set(MetaRemoteAddr, sender)
	assert.Equal(t, component.Delivered, p.Send(context.Background(), reply))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	desc := core.Describe()
	assert.Equal(t, int64(1), desc["received"])
	assert.Equal(t, int64(1), desc["sent"])
}

func TestCore_SendsToRemote(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	p, _, _ := buildPipeline(t, &Metadata{Remote: server.LocalAddr().String()})

	assert.Equal(t, component.Delivered,
		p.Send(context.Background(), message.New(message.SourceInner, map[string]int{"n": 1})))

	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(buf[:n]))
}

func TestCore_ReplyWithoutTargetFaults(t *testing.T) {
	p, _, _ := buildPipeline(t, &Metadata{
		MetadataBase: component.MetadataBase{Direction: component.DirectionInputAndOutput},
		Listen:       "127.0.0.1:0",
	})

	assert.Equal(t, component.Faulted, p.Send(context.Background(), message.New(message.SourceInner, "x")))
	assert.Equal(t, 1, p.Exceptions().Count())
}

func TestCore_CloseAndReinit(t *testing.T) {
	p, core, _ := buildPipeline(t, &Metadata{Listen: "127.0.0.1:0"})

	require.NoError(t, p.Close(context.Background()))
	assert.Nil(t, core.LocalAddr())
	assert.Equal(t, component.StateClosed, core.State())

	require.NoError(t, p.Init(context.Background()))
	assert.NotNil(t, core.LocalAddr())
	assert.Equal(t, component.StateInitialized, core.State())
}
