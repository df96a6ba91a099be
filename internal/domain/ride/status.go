package ride

import (
	"errors"
	"strings"
)

// State is a ride state as stored in the `rides.state` column.
type State string

const (
	StateRequested  State = "REQUESTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

var ErrInvalidState = errors.New("invalid ride state")

// ParseState normalizes (uppercases+trims) and validates a state string.
func ParseState(in string) (State, error) {
	state := State(strings.ToUpper(strings.TrimSpace(in)))
	if state.Valid() {
		return state, nil
	}
	return "", ErrInvalidState
}

// Valid reports whether state is one of the allowed ride state constants.
func (state State) Valid() bool {
	switch state {
	case StateRequested, StateInProgress, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (state State) Terminal() bool {
	return state == StateCompleted || state == StateFailed
}

// String returns the string representation of the State.
func (state State) String() string {
	return string(state)
}
