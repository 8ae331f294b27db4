package errors

import "errors"

// Lifecycle.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrAlreadyBuilt   = errors.New("channels already built")
	ErrNotBound       = errors.New("endpoint not bound to a pipeline")
)

// Connections.
var (
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// Data.
var (
	ErrInvalidData      = errors.New("invalid data format")
	ErrParsingFailed    = errors.New("parsing failed")
	ErrConversionFailed = errors.New("conversion failed")
)

// Configuration and registry.
var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrMissingConfig        = errors.New("missing required configuration")
	ErrDirectionUnsupported = errors.New("connection direction not supported")
	ErrUnknownKind          = errors.New("unknown component kind")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrDuplicateChannel     = errors.New("channel already registered")
	ErrMiddlewareNotFound   = errors.New("middleware not found")
	ErrRouteConflict        = errors.New("route already mounted")
)

// Resources.
var (
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrStorageFull       = errors.New("storage full")
)
