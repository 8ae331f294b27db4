package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/testutil"
	"github.com/c360/datachannel/transport/inproc"
)

func TestBuilder_RequiresOuter(t *testing.T) {
	_, err := NewBuilder("p").Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
	assert.True(t, errors.IsInvalid(err))
}

func TestBuilder_RejectsBadID(t *testing.T) {
	outer := testutil.NewMockMetadata("outer", component.DirectionInput)
	_, err := NewBuilder("has space").Outer(outer).Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestBuilder_ValidatesMetadataOnce(t *testing.T) {
	outer := testutil.NewMockMetadata("outer", component.DirectionInput)
	inner := testutil.NewMockMetadata("inner", component.DirectionOutput)

	_, err := NewBuilder("p").Outer(outer).Inner(inner).Build(component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, 1, outer.Validated)
	assert.Equal(t, 1, inner.Validated)
}

func TestBuilder_ValidationFailureStopsBuild(t *testing.T) {
	outer := testutil.NewMockMetadata("outer", component.DirectionInput)
	outer.ValidateErr = errors.WrapInvalid(errors.ErrMissingConfig, "MockMetadata", "EnrichOrValidate", "topic")

	_, err := NewBuilder("p").Outer(outer).Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
	assert.Nil(t, outer.Core)
}

func TestBuilder_DirectionMustBeSupported(t *testing.T) {
	outer := testutil.NewMockMetadata("outer", component.DirectionInputAndOutput)
	outer.Supported = component.DirectionInput

	_, err := NewBuilder("p").Outer(outer).Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDirectionUnsupported))
	assert.True(t, errors.IsInvalid(err))

	ok := testutil.NewMockMetadata("outer", component.DirectionInput)
	ok.Supported = component.DirectionInput
	_, err = NewBuilder("p2").Outer(ok).Build(component.Dependencies{})
	assert.NoError(t, err)
}

func TestBuilder_DefaultInnerIsInProcess(t *testing.T) {
	outer := testutil.NewMockMetadata("outer", component.DirectionInputAndOutput)

	p, err := NewBuilder("orders").Outer(outer).Build(component.Dependencies{})
	require.NoError(t, err)

	inner, ok := p.Inner().(*inproc.Core)
	require.True(t, ok)
	assert.Equal(t, "orders", inner.Meta().Name)

	ctx := context.Background()
	d, err := inner.Publish(ctx, "from app")
	require.NoError(t, err)
	assert.Equal(t, component.Delivered, d)
	require.Len(t, outer.Core.Received(), 1)
	assert.Equal(t, message.SourceInner, outer.Core.Received()[0].Source)

	_, err = outer.Core.Emit(ctx, "from wire")
	require.NoError(t, err)
	queued := inner.Drain(10)
	require.Len(t, queued, 1)
	assert.Equal(t, "from wire", queued[0].Data)
}

func TestBuilder_BuildsOnce(t *testing.T) {
	b := NewBuilder("p").Outer(testutil.NewMockMetadata("outer", component.DirectionInput))
	_, err := b.Build(component.Dependencies{})
	require.NoError(t, err)

	_, err = b.Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyBuilt))
}

type plainComponent struct{}

func (plainComponent) Meta() component.Metadata { return component.Metadata{Kind: "plain"} }

func TestBuilder_RejectsNonMiddleware(t *testing.T) {
	_, err := NewBuilder("p").
		Outer(testutil.NewMockMetadata("outer", component.DirectionInput)).
		Use(plainComponent{}).
		Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	md := testutil.NewMockMetadata("x", component.DirectionInput)
	core, err := md.NewCore(component.Dependencies{})
	require.NoError(t, err)
	_, err = NewBuilder("p2").
		Outer(testutil.NewMockMetadata("outer", component.DirectionInput)).
		Use(core).
		Build(component.Dependencies{})
	require.Error(t, err)

	_, err = NewBuilder("p3").
		Outer(testutil.NewMockMetadata("outer", component.DirectionInput)).
		Use(nil).
		Build(component.Dependencies{})
	require.Error(t, err)
}

func TestBuilder_FactoryErrorStopsBuild(t *testing.T) {
	_, err := NewBuilder("p").
		Outer(testutil.NewMockMetadata("outer", component.DirectionInput)).
		UseFactory(func(component.Dependencies) (component.Component, error) {
			return nil, testutil.ErrMockFailed
		}).
		Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrMockFailed))
}

func TestBuilder_ExceptionPoolSize(t *testing.T) {
	outer := func() component.CommunicationMetadata {
		return testutil.NewMockMetadata("outer", component.DirectionInput)
	}

	p, err := NewBuilder("a").Outer(outer()).Build(component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRecentExceptions, p.Exceptions().MaxSize())

	p, err = NewBuilder("b").Outer(outer()).Build(component.Dependencies{}, WithRecentExceptions(25))
	require.NoError(t, err)
	assert.Equal(t, 25, p.Exceptions().MaxSize())

	p, err = NewBuilder("c").Outer(outer()).KeepExceptions(3).Build(component.Dependencies{}, WithRecentExceptions(25))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Exceptions().MaxSize())

	_, err = NewBuilder("d").Outer(outer()).KeepExceptions(0).Build(component.Dependencies{})
	assert.Error(t, err)
}

func TestBuilder_UseKind(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, registry.Register(component.Registration{
		Name:        "suffix",
		Role:        component.RoleMiddleware,
		Description: "appends a configured suffix",
		Version:     "test",
		Middleware: func(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
			var cfg struct {
				Suffix string `json:"suffix"`
			}
			if err := component.DecodeConfig(raw, &cfg); err != nil {
				return nil, err
			}
			return appendTransform("suffix", cfg.Suffix), nil
		},
	}))

	outer := testutil.NewMockMetadata("outer", component.DirectionInputAndOutput)
	inner := testutil.NewMockMetadata("inner", component.DirectionInputAndOutput)
	_, err := NewBuilder("p").
		Outer(outer).
		Inner(inner).
		UseKind(registry, "suffix", json.RawMessage(`{"suffix":"!"}`)).
		Build(component.Dependencies{})
	require.NoError(t, err)

	_, err = outer.Core.Emit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", inner.Core.Received()[0].Data)

	_, err = NewBuilder("q").
		Outer(testutil.NewMockMetadata("outer", component.DirectionInput)).
		UseKind(registry, "missing", nil).
		Build(component.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownKind))
}

type registrar struct{ got []*Builder }

func (r *registrar) RegisterBuilder(b *Builder) error {
	r.got = append(r.got, b)
	return nil
}

func TestBuilder_Register(t *testing.T) {
	r := &registrar{}
	b := NewBuilder("p")
	require.NoError(t, b.Register(r))
	require.Len(t, r.got, 1)
	assert.Same(t, b, r.got[0])
	assert.Equal(t, "p", b.ID())
}
