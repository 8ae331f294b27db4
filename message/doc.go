// Package message defines DataContext, the envelope every data channel carries
// between its endpoints.
//
// A DataContext is created once per message by the endpoint that received it,
// mutated in place while it traverses the pipeline's middleware, and ends either
// delivered to the opposite endpoint or dropped. Payloads are opaque: the
// DataType and SpecifiedType fields describe what the payload is so converters
// can decide whether they apply, without inspecting the bytes.
//
// The type hint is kept in sync with the payload through SetData:
//
//	dc := message.New(message.SourceOuter, []byte(`{"id":1}`))
//	dc.DataType       // message.DataTypeBytes
//	dc.SetData(order) // DataTypeCustom, SpecifiedType == reflect.TypeOf(order)
package message
