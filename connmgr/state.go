package connmgr

import (
	"fmt"

	"github.com/srg/btlink/internal/device"
)

// State is the connection lifecycle position of the Manager.
type State int

const (
	// StateIdle means no connection or attempt exists.
	StateIdle State = iota
	// StateListening means the server endpoint is awaiting a client.
	StateListening
	// StateConnecting means a client attempt is in flight.
	StateConnecting
	// StateConnected means a session is live.
	StateConnected
	// StateFailed marks a failed attempt; transient, the manager settles
	// back to StateIdle within the same transition.
	StateFailed
	// StateClosed means the connection was torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event reports a connection state transition. Device is set only when
// entering StateConnected.
type Event struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Device  *device.Device `json:"device,omitempty"`
}

// StateError is a request refused because of the manager's current state. It
// wraps the relevant sentinel so errors.Is keeps working.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%v (state %s)", e.Err, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}
