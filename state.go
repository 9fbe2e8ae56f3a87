package asyncbridge

import (
	"sync/atomic"
)

// LoopState represents the current state of a [Loop].
//
// State machine:
//
//	StateAwake → StateRunning           [Run]
//	StateRunning ⇄ StateSleeping        [idle wait, wake-up]
//	StateRunning|StateSleeping|StateAwake → StateTerminating  [Shutdown]
//	StateTerminating → StateTerminated  [drain complete]
//
// Temporary states (Running, Sleeping) transition via CAS; Terminated is
// stored directly once the drain has finished and is terminal.
type LoopState uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is actively processing tasks.
	StateRunning
	// StateSleeping indicates the loop is idle, waiting for work or a timer.
	StateSleeping
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has fully stopped. Terminal.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// atomicState is the loop's lock-free state machine.
type atomicState struct {
	v atomic.Uint32
}

func (s *atomicState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state. Only valid for irreversible states
// (Terminating on the loop goroutine's own initiative, Terminated); using it
// for Running or Sleeping would break the CAS-based sleep/wake protocol.
func (s *atomicState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *atomicState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
