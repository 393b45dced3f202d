package session

import (
	"errors"
	"fmt"
)

// State is a session lifecycle stage.
type State int32

const (
	StateAccepted State = iota
	StateAuthenticating
	StateRelaying
	StateClosed
)

var stateNames = [...]string{
	StateAccepted:       "accepted",
	StateAuthenticating: "authenticating",
	StateRelaying:       "relaying",
	StateClosed:         "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// transitions lists the allowed next states. Closed is terminal.
var transitions = map[State][]State{
	StateAccepted:       {StateAuthenticating, StateClosed},
	StateAuthenticating: {StateRelaying, StateClosed},
	StateRelaying:       {StateRelaying, StateClosed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
