package workflow

import (
	"errors"

	"chunkscribe/internal/services"
)

// State is a pipeline lifecycle stage.
type State string

const (
	StateIdle         State = "idle"
	StateProbing      State = "probing"
	StatePlanning     State = "planning"
	StateExtracting   State = "extracting"
	StateTranscribing State = "transcribing"
	StateMerging      State = "merging"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

var stateOrder = map[State]int{
	StateIdle:         0,
	StateProbing:      1,
	StatePlanning:     2,
	StateExtracting:   3,
	StateTranscribing: 4,
	StateMerging:      5,
	StateDone:         6,
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// canTransition allows forward moves through the ordered states and a jump
// to Failed or Cancelled from any non-terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	fromOrder, okFrom := stateOrder[from]
	toOrder, okTo := stateOrder[to]
	return okFrom && okTo && toOrder > fromOrder
}

// FailureState maps a run error onto its terminal state.
func FailureState(err error) State {
	switch {
	case err == nil:
		return StateDone
	case services.IsCancellation(err):
		return StateCancelled
	default:
		return StateFailed
	}
}

var errAlreadyStarted = errors.New("workflow: pipeline already started")
