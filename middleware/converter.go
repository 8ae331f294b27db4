package middleware

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// Converter converts payloads between types.
type Converter interface {
	// CanConvert reports whether payloads declared as t are handled.
	CanConvert(t reflect.Type) bool
	// Convert returns the converted payload.
	Convert(data any) (any, error)
}

// Outcome is the result of one Transform call.
type Outcome int

const (
	// Unchanged means the converter did not apply and the context is untouched
	Unchanged Outcome = iota
	// Converted means the payload was replaced
	Converted
	// Failed means the converter applied and returned an error
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Converted:
		return "converted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Uni converts X into Y.
type Uni[X, Y any] struct {
	from reflect.Type
	fn   func(X) (Y, error)
}

// NewUni creates a one-way converter.
func NewUni[X, Y any](fn func(X) (Y, error)) *Uni[X, Y] {
	return &Uni[X, Y]{from: reflect.TypeFor[X](), fn: fn}
}

// CanConvert reports whether t is assignable to X
func (u *Uni[X, Y]) CanConvert(t reflect.Type) bool {
	return t != nil && t.AssignableTo(u.from)
}

// Convert asserts data to X and converts it
func (u *Uni[X, Y]) Convert(data any) (any, error) {
	x, ok := data.(X)
	if !ok {
		return nil, fmt.Errorf("%w: cannot convert %T, want %s", errors.ErrConversionFailed, data, u.from)
	}
	y, err := u.fn(x)
	if err != nil {
		return nil, err
	}
	return y, nil
}

// Bi converts T1 into T2 and T2 into T1.
type Bi[T1, T2 any] struct {
	first, second reflect.Type
	forward       func(T1) (T2, error)
	backward      func(T2) (T1, error)
}

// NewBi creates a two-way converter.
func NewBi[T1, T2 any](forward func(T1) (T2, error), backward func(T2) (T1, error)) *Bi[T1, T2] {
	return &Bi[T1, T2]{
		first:    reflect.TypeFor[T1](),
		second:   reflect.TypeFor[T2](),
		forward:  forward,
		backward: backward,
	}
}

// CanConvert reports whether t is assignable to either side
func (b *Bi[T1, T2]) CanConvert(t reflect.Type) bool {
	return t != nil && (t.AssignableTo(b.first) || t.AssignableTo(b.second))
}

// Convert dispatches on the runtime type of data. T1 is tried first.
func (b *Bi[T1, T2]) Convert(data any) (any, error) {
	if v, ok := data.(T1); ok {
		out, err := b.forward(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	if v, ok := data.(T2); ok {
		out, err := b.backward(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %T, want %s or %s",
		errors.ErrConversionFailed, data, b.first, b.second)
}

// Transformer is a transform middleware driven by a Converter.
type Transformer struct {
	meta component.Metadata
	conv Converter

	converted atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

var _ component.TransformMiddleware = (*Transformer)(nil)

// NewTransformer wraps conv as a pipeline middleware.
func NewTransformer(meta component.Metadata, conv Converter) *Transformer {
	if meta.Kind == "" {
		meta.Kind = "transformer"
	}
	return &Transformer{meta: meta, conv: conv}
}

// Meta describes the transformer
func (t *Transformer) Meta() component.Metadata { return t.meta }

// Transform applies the converter to dc.
//
// A context without payload, without type hint or with a hint the converter
// does not handle is left Unchanged. A converter error or a nil result is
// Failed and wraps errors.ErrConversionFailed.
func (t *Transformer) Transform(dc *message.DataContext) (Outcome, error) {
	if !dc.HasData() || dc.SpecifiedType == nil || !t.conv.CanConvert(dc.SpecifiedType) {
		t.skipped.Add(1)
		return Unchanged, nil
	}

	out, err := t.conv.Convert(dc.Data)
	if err == nil && out == nil {
		err = fmt.Errorf("converter returned no value for %s", dc.TypeName())
	}
	if err != nil {
		t.failed.Add(1)
		if !errors.Is(err, errors.ErrConversionFailed) {
			err = fmt.Errorf("%w: %w", errors.ErrConversionFailed, err)
		}
		return Failed, errors.WrapInvalid(err, t.name(), "Transform", "convert "+dc.TypeName())
	}

	dc.SetData(out)
	t.converted.Add(1)
	return Converted, nil
}

// Pass runs Transform and reports Failed as an error.
func (t *Transformer) Pass(dc *message.DataContext) (*message.DataContext, error) {
	if _, err := t.Transform(dc); err != nil {
		return nil, err
	}
	return dc, nil
}

// Describe reports conversion counts
func (t *Transformer) Describe() map[string]any {
	return map[string]any{
		"converted": t.converted.Load(),
		"skipped":   t.skipped.Load(),
		"failed":    t.failed.Load(),
	}
}

func (t *Transformer) name() string {
	if t.meta.Name != "" {
		return t.meta.Name
	}
	return t.meta.Kind
}
