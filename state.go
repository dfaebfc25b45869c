package framebridge

import (
	"sync/atomic"
)

// BridgeState represents the lifecycle state of a [Bridge].
//
// State Machine:
//
//	StateIdle (0) → StateRunning (1)       [Run()]
//	StateRunning (1) → StateStopping (2)   [Shutdown() / ctx cancellation]
//	StateStopping (2) → StateStopped (3)   [both worker loops joined]
//	StateIdle (0) → StateStopped (3)       [Shutdown() before Run()]
//	StateStopped (3) → (terminal)
//
// Transition Rules:
//   - Use TryTransition() (CAS) for contended transitions (Run vs Shutdown)
//   - Use Store() only for the irreversible StateStopped
type BridgeState uint64

const (
	// StateIdle indicates the bridge has been assembled but not started.
	StateIdle BridgeState = iota
	// StateRunning indicates both worker loops are active.
	StateRunning
	// StateStopping indicates shutdown has been requested; the loops drain
	// and exit cooperatively.
	StateStopping
	// StateStopped indicates both loops have exited (or been abandoned).
	StateStopped
)

// String returns a human-readable representation of the state.
func (s BridgeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// lifecycle is a lock-free state machine with cache-line padding.
//
// Pure atomic CAS, no mutex. The padding prevents false sharing with
// whatever the enclosing struct places around it, since both worker
// goroutines poll the state once per tick.
type lifecycle struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte
	v atomic.Uint64
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte
}

// Load returns the current state atomically.
func (s *lifecycle) Load() BridgeState {
	return BridgeState(s.v.Load())
}

// Store atomically stores a new state. Reserved for irreversible states.
func (s *lifecycle) Store(state BridgeState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another, reporting whether it succeeded.
func (s *lifecycle) TryTransition(from, to BridgeState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// Stopping reports whether shutdown has been requested or completed. Worker
// loops check this once per iteration; it is the cooperative stop flag.
func (s *lifecycle) Stopping() bool {
	state := s.Load()
	return state == StateStopping || state == StateStopped
}
