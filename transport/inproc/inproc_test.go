package inproc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/testutil"
	"github.com/c360/datachannel/transport/inproc"
)

func build(t *testing.T, inner *inproc.Metadata) (*pipeline.Pipeline, *testutil.MockMetadata) {
	t.Helper()
	outer := testutil.NewMockMetadata("outer", component.DirectionInputAndOutput)
	b := pipeline.NewBuilder("inproc-test").Outer(outer)
	if inner != nil {
		b.Inner(inner)
	}
	p, err := b.Build(component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))
	return p, outer
}

func TestEnrichOrValidate(t *testing.T) {
	md := &inproc.Metadata{}
	require.NoError(t, md.EnrichOrValidate())
	assert.Equal(t, component.DirectionInputAndOutput, md.Direction)
	assert.Equal(t, inproc.DefaultBacklog, md.Backlog)

	bad := &inproc.Metadata{Backlog: -1}
	assert.True(t, errors.IsInvalid(bad.EnrichOrValidate()))
}

func TestParseMetadata(t *testing.T) {
	md, err := inproc.ParseMetadata([]byte(`{"name":"app","backlog":8}`))
	require.NoError(t, err)
	assert.Equal(t, "app", md.(*inproc.Metadata).Name)
	assert.Equal(t, 8, md.(*inproc.Metadata).Backlog)

	_, err = inproc.ParseMetadata([]byte(`{"unknown":true}`))
	assert.Error(t, err)
}

func TestPublish_ReachesOuter(t *testing.T) {
	p, outer := build(t, nil)
	inner := p.Inner().(*inproc.Core)

	delivery, err := inner.Publish(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, component.Delivered, delivery)

	received := outer.Core.Received()
	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Data)
	assert.Equal(t, message.SourceInner, received[0].Source)
}

func TestBacklog_ReplayedToHandler(t *testing.T) {
	p, outer := build(t, nil)
	inner := p.Inner().(*inproc.Core)
	ctx := context.Background()

	for _, payload := range []string{"a", "b", "c"} {
		delivery, err := outer.Core.Emit(ctx, payload)
		require.NoError(t, err)
		require.Equal(t, component.Delivered, delivery)
	}
	assert.Equal(t, 3, inner.Pending())

	var got []any
	require.NoError(t, inner.OnReceive(ctx, func(_ context.Context, dc *message.DataContext) error {
		got = append(got, dc.Data)
		return nil
	}))
	assert.Equal(t, []any{"a", "b", "c"}, got)
	assert.Equal(t, 0, inner.Pending())

	_, err := outer.Core.Emit(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, got)
}

func TestBacklog_DropsOldest(t *testing.T) {
	p, outer := build(t, &inproc.Metadata{Backlog: 2})
	inner := p.Inner().(*inproc.Core)

	for _, payload := range []string{"a", "b", "c"} {
		_, err := outer.Core.Emit(context.Background(), payload)
		require.NoError(t, err)
	}

	drained := inner.Drain(10)
	require.Len(t, drained, 2)
	assert.Equal(t, "b", drained[0].Data)
	assert.Equal(t, "c", drained[1].Data)
	assert.Equal(t, int64(1), inner.Describe()["backlog_drops"])
}

func TestHandlerError_Faults(t *testing.T) {
	p, outer := build(t, nil)
	inner := p.Inner().(*inproc.Core)
	require.NoError(t, inner.OnReceive(context.Background(), func(context.Context, *message.DataContext) error {
		return errors.New("consumer failed")
	}))

	delivery, err := outer.Core.Emit(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, component.Faulted, delivery)
	assert.Equal(t, 1, p.Exceptions().Count())
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, inproc.Register(registry))

	md, err := registry.CreateMetadata(inproc.Kind, []byte(`{"backlog":4}`))
	require.NoError(t, err)
	assert.Equal(t, 4, md.(*inproc.Metadata).Backlog)
}
