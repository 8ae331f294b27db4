package message

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// DataType classifies a payload for converters and adapters.
type DataType int

const (
	// DataTypeCustom is any payload that is neither a string nor a byte slice
	DataTypeCustom DataType = iota
	// DataTypeBytes is a []byte payload
	DataTypeBytes
	// DataTypeString is a string payload
	DataTypeString
)

var dataTypeNames = map[DataType]string{
	DataTypeCustom: "custom",
	DataTypeBytes:  "bytes",
	DataTypeString: "string",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// MarshalJSON encodes the data type by name
func (t DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// ClassifyType maps a runtime type to a DataType. A nil type is Custom.
func ClassifyType(t reflect.Type) DataType {
	switch t {
	case stringType:
		return DataTypeString
	case bytesType:
		return DataTypeBytes
	default:
		return DataTypeCustom
	}
}

var (
	stringType = reflect.TypeFor[string]()
	bytesType  = reflect.TypeFor[[]byte]()
)

// Source identifies which side of a pipeline produced a message.
type Source int

const (
	// SourceOuter is the transport-facing endpoint
	SourceOuter Source = iota
	// SourceInner is the application-facing endpoint
	SourceInner
	// SourceMiddleware marks messages injected by a middleware
	SourceMiddleware
)

func (s Source) String() string {
	switch s {
	case SourceOuter:
		return "outer"
	case SourceInner:
		return "inner"
	case SourceMiddleware:
		return "middleware"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// MarshalJSON encodes the source by name
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseSource converts a name back into a Source.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "outer":
		return SourceOuter, nil
	case "inner":
		return SourceInner, nil
	case "middleware":
		return SourceMiddleware, nil
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

// Operation describes what the producer intends with the message.
type Operation int

const (
	OperationCustom Operation = iota
	OperationGet
	OperationPublish
	OperationResponse
)

func (o Operation) String() string {
	switch o {
	case OperationCustom:
		return "custom"
	case OperationGet:
		return "get"
	case OperationPublish:
		return "publish"
	case OperationResponse:
		return "response"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// MarshalJSON encodes the operation by name
func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}
