// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"

	"github.com/pdiddy/statement-review/pkg/types"
)

// StateObserver is told about every state transition of a run.
type StateObserver func(from, to types.RunState)

// tracker holds the state of one run. It is owned by the goroutine that
// calls Run; specialist goroutines never touch it.
type tracker struct {
	state    types.RunState
	observer StateObserver
}

func newTracker(obs StateObserver) *tracker {
	return &tracker{state: types.StateIdle, observer: obs}
}

// advance performs a validated transition.
func (t *tracker) advance(to types.RunState) error {
	from := t.state
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed run transition: %s -> %s", from, to)
	}
	t.state = to
	if t.observer != nil {
		t.observer(from, to)
	}
	return nil
}

// fail moves the run to StateFailed from whichever in-flight state it is in.
func (t *tracker) fail() {
	if isAllowedTransition(t.state, types.StateFailed) {
		_ = t.advance(types.StateFailed)
	}
}

func isAllowedTransition(from, to types.RunState) bool {
	switch from {
	case types.StateIdle:
		return to == types.StateSpecialistsInFlight
	case types.StateSpecialistsInFlight:
		return to == types.StateSpecialistsComplete || to == types.StateFailed
	case types.StateSpecialistsComplete:
		return to == types.StateAggregatorInFlight
	case types.StateAggregatorInFlight:
		return to == types.StateDone || to == types.StateFailed
	default:
		return false
	}
}

// IsTerminal reports whether the state ends a run.
func IsTerminal(s types.RunState) bool {
	return s == types.StateDone || s == types.StateFailed
}
