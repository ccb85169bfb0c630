package execution

import "errors"

var (
	ErrBusy         = errors.New("another execution is in flight")
	ErrCooldown     = errors.New("opportunity is cooling down")
	ErrShuttingDown = errors.New("coordinator is shutting down")
)

// State is the coordinator's position in the execution state machine
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateAwaitingConfirmation
	StateConfirmed
	StateReverted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateReverted:
		return "reverted"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}
