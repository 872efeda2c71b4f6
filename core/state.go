package core

import "fmt"

// WorkerState is the lifecycle state of a Worker.
//
// State Machine:
//
//	StateUncreated    → StateIdle          [Create()]
//	StateUncreated    → StatePending       [Create() after a pre-create Signal()]
//	StateUncreated    → StateTerminated    [Destroy() without Create()]
//	StateIdle         → StatePending       [Signal() accepted]
//	StatePending      → StateBusy          [loop picks up the kick]
//	StateBusy         → StateIdle          [callback returned]
//	StateIdle         → StateShuttingDown  [Destroy()]
//	StateShuttingDown → StateTerminated    [loop observed shutdown]
//	StateTerminated   → (terminal)
//
// Busy and Pending never coexist: a Worker holds at most one kick, either
// waiting to run or running.
type WorkerState int32

const (
	// StateUncreated means no goroutine has been started yet.
	StateUncreated WorkerState = iota

	// StateIdle means the loop is parked waiting for a kick or shutdown.
	StateIdle

	// StatePending means a kick was accepted and the loop has not picked it up yet.
	StatePending

	// StateBusy means the bound callback is executing.
	StateBusy

	// StateShuttingDown means Destroy has been requested and the loop has not exited yet.
	StateShuttingDown

	// StateTerminated means the loop has exited. Irreversible.
	StateTerminated
)

// String returns the lower-case name of the state.
func (s WorkerState) String() string {
	switch s {
	case StateUncreated:
		return "uncreated"
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateBusy:
		return "busy"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// IsActive reports whether a run is executing or an accepted kick is waiting to run.
func (s WorkerState) IsActive() bool {
	return s == StatePending || s == StateBusy
}

// IsStopping reports whether shutdown has been requested or completed.
func (s WorkerState) IsStopping() bool {
	return s == StateShuttingDown || s == StateTerminated
}

// validTransitions lists every allowed (from → to) edge.
var validTransitions = map[WorkerState][]WorkerState{
	StateUncreated:    {StateIdle, StatePending, StateTerminated},
	StateIdle:         {StatePending, StateShuttingDown},
	StatePending:      {StateBusy},
	StateBusy:         {StateIdle},
	StateShuttingDown: {StateTerminated},
}

// canTransition reports whether the edge from → to is part of the state machine.
func canTransition(from, to WorkerState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MarshalText encodes the state by name.
func (s WorkerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
