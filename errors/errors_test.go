package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.class.String(); got != tt.expected {
			t.Errorf("ErrorClass(%d).String() = %q, want %q", tt.class, got, tt.expected)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped no connection", fmt.Errorf("dial: %w", ErrNoConnection), true},
		{"pattern match", errors.New("server temporarily unavailable"), true},
		{"invalid data", ErrInvalidData, false},
		{"classified fatal", WrapFatal(errors.New("timeout"), "c", "m", "a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrConversionFailed))
	assert.True(t, IsInvalid(fmt.Errorf("outer: %w", ErrDirectionUnsupported)))
	assert.True(t, IsInvalid(ErrMissingConfig))
	assert.False(t, IsInvalid(ErrConnectionLost))
	assert.False(t, IsInvalid(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrStorageFull))
	assert.True(t, IsFatal(errors.New("disk full on /var")))
	assert.False(t, IsFatal(ErrInvalidConfig))
	assert.False(t, IsFatal(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrConversionFailed))
	assert.Equal(t, ErrorFatal, Classify(ErrResourceExhausted))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestClassifiedError(t *testing.T) {
	base := errors.New("base")
	ce := &ClassifiedError{Class: ErrorInvalid, Err: base, Message: "custom", Component: "c", Operation: "op"}

	assert.Equal(t, "custom", ce.Error())
	assert.True(t, errors.Is(ce, base))

	noMsg := &ClassifiedError{Class: ErrorFatal, Err: base}
	assert.Equal(t, "base", noMsg.Error())
}

func TestWrap(t *testing.T) {
	require.Nil(t, Wrap(nil, "Pipeline", "Init", "endpoint init"))

	err := Wrap(ErrNotBound, "BaseCore", "Emit", "dispatch")
	require.Error(t, err)
	assert.Equal(t, "BaseCore.Emit: dispatch failed: endpoint not bound to a pipeline", err.Error())
	assert.True(t, errors.Is(err, ErrNotBound))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, tt.wrap(nil, "c", "m", "a"))

			err := tt.wrap(base, "Central", "StartBuild", "build")
			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Central", ce.Component)
			assert.Equal(t, "StartBuild", ce.Operation)
			assert.Equal(t, "Central.StartBuild: build failed: boom", err.Error())
			assert.True(t, errors.Is(err, base))
			assert.Equal(t, tt.class, Classify(err))
		})
	}
}

func TestWrapKeepsClass(t *testing.T) {
	inner := WrapInvalid(ErrInvalidConfig, "KafkaMetadata", "EnrichOrValidate", "validate")
	outer := Wrap(inner, "Builder", "Build", "outer metadata")
	assert.True(t, IsInvalid(outer))
	assert.True(t, Is(outer, ErrInvalidConfig))
}

func TestJoin(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	joined := Join(a, nil, b)
	assert.True(t, Is(joined, a))
	assert.True(t, Is(joined, b))
	assert.Nil(t, Join(nil, nil))
}
