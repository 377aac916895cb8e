package engine

import "fmt"

// State is the engine's internal run state.
type State int

const (
	// StateIdle accepts configuration calls; the worker does not process
	StateIdle State = iota
	// StateRunning pairs and processes buffers
	StateRunning
	// StateStopping waits for the worker to finish its current pass
	StateStopping
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
