package middleware

import (
	"encoding/json"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
)

type nameConfig struct {
	Name string `json:"name"`
}

func decodeName(raw json.RawMessage, fallback string) (string, error) {
	var cfg nameConfig
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return "", err
	}
	if cfg.Name == "" {
		return fallback, nil
	}
	return cfg.Name, nil
}

// Register adds every built-in middleware kind to registry.
func Register(registry *component.Registry) error {
	regs := []component.Registration{
		{
			Name:        "counter",
			Description: "Counts messages by source",
			Middleware:  CreateCounter,
		},
		{
			Name:        "debugger",
			Description: "Captures formatted messages while active",
			Middleware:  CreateDebugger,
		},
		{
			Name:        "analyzer",
			Description: "Collects message type, JSON and size statistics",
			Middleware:  CreateAnalyzer,
		},
		{
			Name:        "schema_gate",
			Description: "Drops or rejects payloads failing a JSON schema",
			Middleware:  CreateSchemaGate,
		},
		{
			Name:        "string_bytes",
			Description: "Converts between string and UTF-8 bytes",
			Middleware: func(json.RawMessage, component.Dependencies) (component.Component, error) {
				return NewStringBytes(), nil
			},
		},
		{
			Name:        "json_encode",
			Description: "Encodes any payload as JSON bytes",
			Middleware: func(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
				name, err := decodeName(raw, "json_encode")
				if err != nil {
					return nil, err
				}
				return NewJSONEncoder[any](name), nil
			},
		},
		{
			Name:        "json_decode",
			Description: "Decodes JSON bytes into generic objects",
			Middleware: func(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
				name, err := decodeName(raw, "json_decode")
				if err != nil {
					return nil, err
				}
				return NewJSONDecoder[map[string]any](name), nil
			},
		},
	}

	for _, reg := range regs {
		reg.Role = component.RoleMiddleware
		reg.Version = "1.0.0"
		if err := registry.Register(reg); err != nil {
			return errors.Wrap(err, "Middleware", "Register", reg.Name+" registration")
		}
	}
	return nil
}
