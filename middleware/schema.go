package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// Schema gate actions for invalid payloads
const (
	SchemaDrop   = "drop"
	SchemaReject = "reject"
)

// SchemaGateConfig configures a SchemaGate. Exactly one of Schema and
// SchemaFile must be set.
type SchemaGateConfig struct {
	Name       string          `json:"name" validate:"omitempty,max=128"`
	Schema     json.RawMessage `json:"schema,omitempty"`
	SchemaFile string          `json:"schema_file,omitempty"`
	OnInvalid  string          `json:"on_invalid" validate:"omitempty,oneof=drop reject"`
}

// SchemaGate is an endpoint middleware validating payloads against a JSON
// schema. Invalid payloads are dropped silently or rejected as a fault.
type SchemaGate struct {
	name   string
	schema *gojsonschema.Schema
	reject bool

	passed  atomic.Int64
	invalid atomic.Int64
}

var _ component.EndpointMiddleware = (*SchemaGate)(nil)

// NewSchemaGate compiles the configured schema.
func NewSchemaGate(cfg SchemaGateConfig) (*SchemaGate, error) {
	if err := component.ValidateStruct("SchemaGate", &cfg); err != nil {
		return nil, err
	}

	var loader gojsonschema.JSONLoader
	switch {
	case len(cfg.Schema) > 0 && cfg.SchemaFile != "":
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: schema and schema_file are exclusive", errors.ErrInvalidConfig),
			"SchemaGate", "New", "schema source")
	case len(cfg.Schema) > 0:
		loader = gojsonschema.NewBytesLoader(cfg.Schema)
	case cfg.SchemaFile != "":
		abs, err := filepath.Abs(cfg.SchemaFile)
		if err != nil {
			return nil, errors.WrapInvalid(err, "SchemaGate", "New", "schema path")
		}
		loader = gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs))
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: schema or schema_file", errors.ErrMissingConfig), "SchemaGate", "New", "schema source")
	}

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "SchemaGate", "New", "schema compile")
	}

	name := cfg.Name
	if name == "" {
		name = "schema_gate"
	}
	return &SchemaGate{name: name, schema: schema, reject: cfg.OnInvalid == SchemaReject}, nil
}

// CreateSchemaGate is the registry factory
func CreateSchemaGate(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
	var cfg SchemaGateConfig
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "SchemaGate", "Create", "config decode")
	}
	return NewSchemaGate(cfg)
}

// Meta describes the gate
func (g *SchemaGate) Meta() component.Metadata {
	return component.Metadata{Name: g.name, Kind: "schema_gate", Description: "JSON schema validation gate", Version: "1.0.0"}
}

// Handle validates dc's payload. Valid payloads pass unchanged.
func (g *SchemaGate) Handle(_ context.Context, dc *message.DataContext) (*message.DataContext, error) {
	result, err := g.schema.Validate(documentLoader(dc.Data))
	if err == nil && result.Valid() {
		g.passed.Add(1)
		return dc, nil
	}
	g.invalid.Add(1)

	if !g.reject {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err), "SchemaGate", "Handle", "payload decode")
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(details, "; ")),
		"SchemaGate", "Handle", "schema validation")
}

// Describe reports validation counts
func (g *SchemaGate) Describe() map[string]any {
	return map[string]any{
		"passed":     g.passed.Load(),
		"invalid":    g.invalid.Load(),
		"on_invalid": map[bool]string{true: SchemaReject, false: SchemaDrop}[g.reject],
	}
}

func documentLoader(data any) gojsonschema.JSONLoader {
	switch v := data.(type) {
	case []byte:
		return gojsonschema.NewBytesLoader(v)
	case string:
		return gojsonschema.NewStringLoader(v)
	default:
		return gojsonschema.NewGoLoader(v)
	}
}
