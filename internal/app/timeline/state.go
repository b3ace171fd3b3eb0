package timeline

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidState is returned when a state outside the transport vocabulary is recorded.
var ErrInvalidState = errors.New("timeline: invalid state")

// State represents the transport state.
type State int

const (
	StateStopped State = iota // Nothing scheduled
	StateStarted              // Playing
	StatePaused               // Position frozen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarted:
		return "started"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Valid returns true for the three recognised states.
func (s State) Valid() bool {
	return s == StateStopped || s == StateStarted || s == StatePaused
}

// StateEvent records a state change.
type StateEvent struct {
	Time  float64
	State State
}

// EventTime implements Event.
func (e StateEvent) EventTime() float64 {
	return e.Time
}

// StateTimeline tracks transport state over time.
type StateTimeline struct {
	events  *Timeline[StateEvent]
	initial State
}

// NewStateTimeline creates a state timeline whose state before the first event is initial.
func NewStateTimeline(initial State, memory int) *StateTimeline {
	return &StateTimeline{
		events:  New[StateEvent](memory),
		initial: initial,
	}
}

// SetStateAtTime records state starting at time.
func (s *StateTimeline) SetStateAtTime(state State, time float64) error {
	if !state.Valid() {
		return errors.Wrapf(ErrInvalidState, "state=%d", int(state))
	}
	return s.events.Add(StateEvent{Time: time, State: state})
}

// GetValueAtTime returns the state active at time.
func (s *StateTimeline) GetValueAtTime(time float64) State {
	if e, ok := s.events.Get(time); ok {
		return e.State
	}
	return s.initial
}

// GetLastState returns the latest event at or before time that set state.
func (s *StateTimeline) GetLastState(state State, time float64) (StateEvent, bool) {
	events := s.events.Events()
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Time > time {
			continue
		}
		if e.State == state {
			return e, true
		}
	}
	return StateEvent{}, false
}

// GetNextState returns the earliest event at or after time that sets state.
func (s *StateTimeline) GetNextState(state State, time float64) (StateEvent, bool) {
	var found StateEvent
	ok := false
	s.events.ForEachFrom(time, func(e StateEvent) {
		if !ok && e.State == state {
			found, ok = e, true
		}
	})
	return found, ok
}

// GetDurationInState sums the time spent in state between 0 and endTime, including an
// interval still open at endTime.
func (s *StateTimeline) GetDurationInState(state State, endTime float64) float64 {
	var total, since float64
	current := s.initial

	for _, e := range s.events.Events() {
		if e.Time > endTime {
			break
		}
		if current == state {
			total += e.Time - since
		}
		current = e.State
		since = e.Time
	}

	if current == state && endTime > since {
		total += endTime - since
	}
	return total
}

// Events returns all state events in time order.
func (s *StateTimeline) Events() []StateEvent {
	return s.events.Events()
}

// Len returns the number of recorded state changes.
func (s *StateTimeline) Len() int {
	return s.events.Len()
}

// Cancel removes state changes at or after time.
func (s *StateTimeline) Cancel(time float64) {
	s.events.Cancel(time)
}

// Clear removes every state change.
func (s *StateTimeline) Clear() {
	s.events.Clear()
}
