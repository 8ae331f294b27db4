package message

import (
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// DataContext is the message envelope carried through a pipeline.
//
// When DataType is DataTypeCustom, SpecifiedType matches the runtime type of
// Data. Middleware replacing Data must go through SetData to keep that true.
type DataContext struct {
	ID            uuid.UUID      `json:"id"`
	Data          any            `json:"data,omitempty"`
	DataType      DataType       `json:"data_type"`
	SpecifiedType reflect.Type   `json:"-"`
	Source        Source         `json:"source"`
	Entrance      Source         `json:"entrance"`
	Operation     Operation      `json:"operation"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// New wraps a payload produced by source. Entrance is set to source as well.
func New(source Source, data any) *DataContext {
	dc := &DataContext{
		ID:        uuid.New(),
		Source:    source,
		Entrance:  source,
		CreatedAt: time.Now(),
	}
	dc.SetData(data)
	return dc
}

// NewTyped wraps a payload with an explicit type hint, for producers whose
// payload is declared as an interface type.
func NewTyped(source Source, data any, specified reflect.Type) *DataContext {
	dc := New(source, data)
	if specified != nil {
		dc.SpecifiedType = specified
		dc.DataType = ClassifyType(specified)
	}
	return dc
}

// SetData replaces the payload and recomputes SpecifiedType and DataType from
// its runtime type. A nil payload clears the type hint.
func (dc *DataContext) SetData(data any) {
	dc.Data = data
	if data == nil {
		dc.SpecifiedType = nil
		dc.DataType = DataTypeCustom
		return
	}
	dc.SpecifiedType = reflect.TypeOf(data)
	dc.DataType = ClassifyType(dc.SpecifiedType)
}

// HasData reports whether the context carries a payload.
func (dc *DataContext) HasData() bool {
	return dc != nil && dc.Data != nil
}

// Set attaches a metadata annotation.
func (dc *DataContext) Set(key string, value any) {
	if dc.Metadata == nil {
		dc.Metadata = make(map[string]any)
	}
	dc.Metadata[key] = value
}

// Get reads a metadata annotation.
func (dc *DataContext) Get(key string) (any, bool) {
	v, ok := dc.Metadata[key]
	return v, ok
}

// Clone returns a shallow copy with its own metadata map. The payload itself is shared.
func (dc *DataContext) Clone() *DataContext {
	if dc == nil {
		return nil
	}
	cp := *dc
	cp.Metadata = maps.Clone(dc.Metadata)
	return &cp
}

// TypeName returns the hint's name for logs and status output.
func (dc *DataContext) TypeName() string {
	if dc.SpecifiedType == nil {
		return "<nil>"
	}
	return dc.SpecifiedType.String()
}
