package middleware

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
)

// NewStringBytes converts string payloads to UTF-8 bytes and bytes back to
// strings. Invalid UTF-8 fails the conversion.
func NewStringBytes() *Transformer {
	conv := NewBi(
		func(s string) ([]byte, error) { return []byte(s), nil },
		func(b []byte) (string, error) {
			if !utf8.Valid(b) {
				return "", fmt.Errorf("%w: payload is not valid UTF-8", errors.ErrConversionFailed)
			}
			return string(b), nil
		},
	)
	return NewTransformer(component.Metadata{
		Name:        "string_bytes",
		Kind:        "string_bytes",
		Description: "Converts between string and UTF-8 bytes",
		Version:     "1.0.0",
	}, conv)
}

// NewJSONEncoder marshals T payloads to JSON bytes.
func NewJSONEncoder[T any](name string) *Transformer {
	conv := NewUni(func(v T) ([]byte, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrConversionFailed, err)
		}
		return b, nil
	})
	return NewTransformer(component.Metadata{
		Name:        name,
		Kind:        "json_encode",
		Description: "Encodes payloads as JSON",
		Version:     "1.0.0",
	}, conv)
}

// NewJSONDecoder unmarshals JSON bytes into T.
func NewJSONDecoder[T any](name string) *Transformer {
	conv := NewUni(func(b []byte) (T, error) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return v, fmt.Errorf("%w: %w", errors.ErrConversionFailed, err)
		}
		return v, nil
	})
	return NewTransformer(component.Metadata{
		Name:        name,
		Kind:        "json_decode",
		Description: "Decodes JSON payloads",
		Version:     "1.0.0",
	}, conv)
}
