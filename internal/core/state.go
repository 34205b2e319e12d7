package core

import (
	"errors"
	"fmt"
)

// State is where an import session is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateMapping    State = "mapping"
	StateDispatched State = "dispatched"
	StatePolling    State = "polling"
	StateReady      State = "ready"
	StateTimedOut   State = "timed_out"
	StateFailed     State = "failed"
	StateReviewing  State = "reviewing"
	StateCommitted  State = "committed"
	StateCancelled  State = "cancelled"
)

// ErrInvalidTransition is returned when an operation would move a session
// along an edge the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the legal next states for each state.
var transitions = map[State][]State{
	StateIdle:       {StateMapping, StateDispatched, StateFailed, StateCancelled},
	StateMapping:    {StateReviewing, StateCancelled},
	StateDispatched: {StatePolling, StateFailed, StateCancelled},
	StatePolling:    {StateReady, StateTimedOut, StateFailed, StateCancelled},
	StateReady:      {StateReviewing, StateCancelled},
	StateTimedOut:   {StatePolling, StateCancelled},
	StateReviewing:  {StateMapping, StateCommitted, StateCancelled},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
