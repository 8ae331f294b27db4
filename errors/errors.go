package errors

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass tells a caller how to react to an error.
type ErrorClass int

const (
	// ErrorTransient may succeed on retry.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid is bad input or configuration and never succeeds on retry.
	ErrorInvalid
	// ErrorFatal stops the component.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	}
	return "unknown"
}

// ClassifiedError carries an explicit class. Component and Operation name
// where the classification was made.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// Unclassified errors are matched against these sentinels, then against
// lowercase substrings of their message.
var (
	classSentinels = map[ErrorClass][]error{
		ErrorTransient: {
			ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection,
			context.DeadlineExceeded, context.Canceled,
		},
		ErrorInvalid: {
			ErrInvalidData, ErrParsingFailed, ErrConversionFailed,
			ErrInvalidConfig, ErrMissingConfig, ErrDirectionUnsupported,
			ErrRouteConflict,
		},
		ErrorFatal: {ErrStorageFull, ErrResourceExhausted},
	}
	classPatterns = map[ErrorClass][]string{
		ErrorTransient: {"timeout", "connection", "network", "temporary", "unavailable", "busy"},
		ErrorFatal:     {"fatal", "panic", "out of memory", "disk full"},
	}
)

// hasClass reports whether err belongs to class. An explicit
// classification anywhere in the chain decides alone.
func hasClass(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}

	for _, sentinel := range classSentinels[class] {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range classPatterns[class] {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return hasClass(err, ErrorTransient) }

// IsInvalid reports whether err stems from bad input or configuration.
func IsInvalid(err error) bool { return hasClass(err, ErrorInvalid) }

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool { return hasClass(err, ErrorFatal) }

// Classify picks one class for err. Invalid beats fatal; anything else,
// nil included, is transient.
func Classify(err error) ErrorClass {
	switch {
	case IsInvalid(err):
		return ErrorInvalid
	case IsFatal(err):
		return ErrorFatal
	}
	return ErrorTransient
}
