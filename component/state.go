package component

// State represents the lifecycle state of a transport endpoint
type State int32

const (
	// StateUninitialized is the state before the first Init
	StateUninitialized State = iota
	// StateInitializing is held while Init runs
	StateInitializing
	// StateInitialized means the endpoint is connected
	StateInitialized
	// StateFailed means the last Init returned an error
	StateFailed
	// StateClosed means Close released the endpoint's resources
	StateClosed
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
