package worker

import "github.com/c360/datachannel/errors"

var (
	ErrPoolNotStarted     = errors.New("worker pool: not started")
	ErrPoolAlreadyStarted = errors.New("worker pool: already started")
	ErrPoolStopped        = errors.New("worker pool: stopped")
	ErrStopTimeout        = errors.New("worker pool: stop timeout")
	ErrNilProcessor       = errors.New("worker pool: nil process function")

	// ErrQueueFull is returned by Submit instead of blocking. Callers treat
	// it as back-pressure.
	ErrQueueFull = errors.New("worker pool: queue full")
)
