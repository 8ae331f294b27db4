package middleware

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

const idSchema = `{"type":"object","required":["id"],"properties":{"id":{"type":"integer"}}}`

func TestSchemaGate_Drop(t *testing.T) {
	g, err := NewSchemaGate(SchemaGateConfig{Schema: json.RawMessage(idSchema)})
	require.NoError(t, err)
	ctx := context.Background()

	valid := message.New(message.SourceOuter, []byte(`{"id":1}`))
	out, err := g.Handle(ctx, valid)
	require.NoError(t, err)
	assert.Same(t, valid, out)

	out, err = g.Handle(ctx, message.New(message.SourceOuter, `{"name":"x"}`))
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = g.Handle(ctx, message.New(message.SourceOuter, map[string]any{"id": 2}))
	require.NoError(t, err)
	assert.NotNil(t, out)

	info := g.Describe()
	assert.Equal(t, int64(2), info["passed"])
	assert.Equal(t, int64(1), info["invalid"])
	assert.Equal(t, SchemaDrop, info["on_invalid"])
}

func TestSchemaGate_Reject(t *testing.T) {
	g, err := NewSchemaGate(SchemaGateConfig{Schema: json.RawMessage(idSchema), OnInvalid: SchemaReject})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = g.Handle(ctx, message.New(message.SourceOuter, `{"id":"one"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidData))
	assert.Contains(t, err.Error(), "id")

	_, err = g.Handle(ctx, message.New(message.SourceOuter, "not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParsingFailed))
}

func TestSchemaGate_Config(t *testing.T) {
	_, err := NewSchemaGate(SchemaGateConfig{})
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	_, err = NewSchemaGate(SchemaGateConfig{Schema: json.RawMessage(idSchema), SchemaFile: "x.json"})
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	_, err = NewSchemaGate(SchemaGateConfig{Schema: json.RawMessage(idSchema), OnInvalid: "explode"})
	assert.True(t, errors.IsInvalid(err))

	_, err = NewSchemaGate(SchemaGateConfig{Schema: json.RawMessage(`{"type": 12}`)})
	assert.Error(t, err)
}

func TestSchemaGate_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(idSchema), 0o600))

	comp, err := CreateSchemaGate(json.RawMessage(`{"schema_file":"`+filepath.ToSlash(path)+`"}`), component.Dependencies{})
	require.NoError(t, err)

	g := comp.(*SchemaGate)
	out, err := g.Handle(context.Background(), message.New(message.SourceOuter, `{"id":5}`))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	assert.Equal(t, []string{
		"analyzer", "counter", "debugger", "json_decode", "json_encode", "schema_gate", "string_bytes",
	}, registry.Kinds(component.RoleMiddleware))

	comp, err := registry.CreateMiddleware("json_decode", json.RawMessage(`{"name":"dec"}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "dec", comp.Meta().Name)

	comp, err = registry.CreateMiddleware("string_bytes", nil, component.Dependencies{})
	require.NoError(t, err)
	_, ok := comp.(component.TransformMiddleware)
	assert.True(t, ok)

	assert.Error(t, Register(registry))
}
