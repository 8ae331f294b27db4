package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	assert.Equal(t, []string{
		"httppost", "inproc", "nats", "serial", "sqlstore", "tcp", "timer", "udp", "webhook", "websocket",
	}, registry.Kinds(component.RoleEndpoint))

	assert.Equal(t, []string{
		"analyzer", "counter", "debugger", "json_decode", "json_encode", "schema_gate", "string_bytes",
	}, registry.Kinds(component.RoleMiddleware))

	for name, info := range registry.ListAvailable() {
		assert.Equal(t, "1.0.0", info.Version, name)
		assert.NotEmpty(t, info.Description, name)
	}
}

func TestRegister_Twice(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	err := Register(registry)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister_NilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
