// Package errors provides standardized error handling patterns for data channel components.
//
// # Overview
//
// The package implements a three-class error classification: Transient (temporary,
// retryable by a transport adapter), Invalid (bad input or configuration, never
// retried) and Fatal (unrecoverable).
//
// The pipeline core never retries. Classification exists so transport adapters can
// decide whether their own retry policy (see pkg/retry) should run, and so the
// exception pool can present meaningful fault records.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers set the class explicitly:
//
//	errors.WrapTransient(err, "NATSCore", "Init", "connect")
//	errors.WrapInvalid(err, "Builder", "Build", "outer metadata validation")
//	errors.WrapFatal(err, "Central", "StartBuild", "registry validation")
//
// Wrap keeps whatever class the wrapped error already carries.
//
// # Standard Error Variables
//
//   - Lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyBuilt, ErrNotBound
//   - Connection: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout
//   - Data: ErrInvalidData, ErrParsingFailed, ErrConversionFailed
//   - Configuration: ErrInvalidConfig, ErrMissingConfig, ErrDirectionUnsupported
//   - Registry: ErrChannelNotFound, ErrDuplicateChannel, ErrMiddlewareNotFound
//
// Check classification with IsTransient, IsInvalid and IsFatal, or Classify.
package errors
