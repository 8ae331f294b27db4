package component

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/datachannel/errors"
)

// Config validation limits
const (
	MaxStringLength = 1024
	MaxJSONSize     = 1024 * 1024
	MinPort         = 1
	MaxPort         = 65535
)

// ConfigValidator rejects raw configuration that is oversized, too deep or
// carries control characters, before any factory sees it.
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
	maxStringLen int
	maxJSONSize  int
}

// NewConfigValidator creates a validator with default limits
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		maxDepth:     10,
		maxArraySize: 1000,
		maxStringLen: MaxStringLength,
		maxJSONSize:  MaxJSONSize,
	}
}

// ValidateConfig checks rawConfig. Empty configuration is valid.
func (v *ConfigValidator) ValidateConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > v.maxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), v.maxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}
	if len(bytes.TrimSpace(rawConfig)) == 0 {
		return nil
	}

	var config any
	decoder := json.NewDecoder(bytes.NewReader(rawConfig))
	decoder.UseNumber()
	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}

	return v.validateValue(config, 0)
}

func (v *ConfigValidator) validateValue(value any, depth int) error {
	if depth > v.maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, v.maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		return v.validateString(val)

	case []any:
		if len(val) > v.maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), v.maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for i, elem := range val {
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, elem := range val {
			if err := v.validateString(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "key validation")
			}
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("object field '%s'", key))
			}
		}

	case json.Number, bool, nil:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T in config", value),
			"ConfigValidator", "validateValue", "type check")
	}

	return nil
}

func (v *ConfigValidator) validateString(s string) error {
	if len(s) > v.maxStringLen {
		return errors.WrapInvalid(
			fmt.Errorf("string length %d exceeds maximum %d", len(s), v.maxStringLen),
			"ConfigValidator", "validateString", "length check")
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character: 0x%02x", r),
				"ConfigValidator", "validateString", "control character check")
		}
	}
	return nil
}

// ValidateFactoryConfig validates raw configuration with default limits
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	return NewConfigValidator().ValidateConfig(rawConfig)
}

// DecodeConfig validates rawConfig and decodes it into target.
// Unknown fields are rejected so typos surface at build time.
func DecodeConfig(rawConfig json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return err
	}
	if len(bytes.TrimSpace(rawConfig)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(rawConfig))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "DecodeConfig", "JSON decoding")
	}
	return nil
}

// ValidateComponentName allows letters, digits, dash, underscore and dot.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxStringLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "invalid name characters")
		}
	}
	return nil
}

// ValidatePortNumber validates port numbers are within valid range
func ValidatePortNumber(port int) error {
	if port < MinPort || port > MaxPort {
		return errors.WrapInvalid(
			fmt.Errorf("%w: port %d outside valid range %d-%d", errors.ErrInvalidConfig, port, MinPort, MaxPort),
			"ConfigValidator", "ValidatePortNumber", "port range validation")
	}
	return nil
}
