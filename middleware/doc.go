// Package middleware provides the built-in pipeline middleware.
//
// Transform middleware is built from a Converter wrapped in a Transformer.
// Uni converts one payload type into another; Bi converts both ways and
// picks the direction from the runtime type of the payload. Ready-made
// converters cover string/[]byte and JSON encoding.
//
// Monitor middleware (Counter, Debugger, Analyzer) records what passes through
// on an InfoBoard exposed via Describe. SchemaGate is an endpoint middleware
// that drops or rejects payloads failing a JSON schema.
package middleware
