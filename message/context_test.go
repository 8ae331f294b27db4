package message

import (
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    int
	Total float64
}

func TestNew_ClassifiesPayload(t *testing.T) {
	tests := []struct {
		name     string
		data     any
		dataType DataType
		hint     reflect.Type
	}{
		{"string", "hello", DataTypeString, reflect.TypeFor[string]()},
		{"bytes", []byte("hello"), DataTypeBytes, reflect.TypeFor[[]byte]()},
		{"struct", order{ID: 1}, DataTypeCustom, reflect.TypeFor[order]()},
		{"pointer", &order{ID: 1}, DataTypeCustom, reflect.TypeFor[*order]()},
		{"nil", nil, DataTypeCustom, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := New(SourceOuter, tt.data)
			assert.Equal(t, tt.dataType, dc.DataType)
			assert.Equal(t, tt.hint, dc.SpecifiedType)
			assert.Equal(t, SourceOuter, dc.Source)
			assert.Equal(t, SourceOuter, dc.Entrance)
			assert.NotEqual(t, [16]byte{}, [16]byte(dc.ID))
		})
	}
}

func TestSetData_KeepsHintConsistent(t *testing.T) {
	dc := New(SourceInner, "abc")
	dc.SetData(order{ID: 7})

	assert.Equal(t, DataTypeCustom, dc.DataType)
	assert.Equal(t, reflect.TypeOf(dc.Data), dc.SpecifiedType)

	dc.SetData(nil)
	assert.False(t, dc.HasData())
	assert.Nil(t, dc.SpecifiedType)
}

func TestNewTyped_UsesDeclaredHint(t *testing.T) {
	var r io.Reader = strings.NewReader("x")
	dc := NewTyped(SourceOuter, r, reflect.TypeFor[io.Reader]())

	assert.Equal(t, reflect.TypeFor[io.Reader](), dc.SpecifiedType)
	assert.Equal(t, DataTypeCustom, dc.DataType)
}

func TestClone_IsolatesMetadata(t *testing.T) {
	dc := New(SourceOuter, "payload")
	dc.Set("topic", "orders")

	cp := dc.Clone()
	cp.Set("topic", "changed")
	cp.Source = SourceInner

	v, ok := dc.Get("topic")
	require.True(t, ok)
	assert.Equal(t, "orders", v)
	assert.Equal(t, SourceOuter, dc.Source)
	assert.Nil(t, (*DataContext)(nil).Clone())
}

func TestDataContext_JSON(t *testing.T) {
	dc := New(SourceOuter, "hello")
	dc.Operation = OperationPublish

	raw, err := json.Marshal(dc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	want := map[string]any{
		"source":    "outer",
		"entrance":  "outer",
		"operation": "publish",
		"data_type": "string",
		"data":      "hello",
	}
	got := map[string]any{}
	for k := range want {
		got[k] = decoded[k]
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSource(t *testing.T) {
	for _, s := range []Source{SourceOuter, SourceInner, SourceMiddleware} {
		parsed, err := ParseSource(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseSource("sideways")
	assert.Error(t, err)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "string", New(SourceOuter, "x").TypeName())
	assert.Equal(t, "<nil>", New(SourceOuter, nil).TypeName())
	assert.Equal(t, "custom", DataTypeCustom.String())
	assert.Equal(t, "response", OperationResponse.String())
}
