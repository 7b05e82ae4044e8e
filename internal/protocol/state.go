package protocol

import "fmt"

// State is the orchestrator lifecycle. ABORTED is terminal and reachable
// from VALIDATING only: data whose integrity cannot be proven is never
// fitted or analyzed.
type State string

const (
	StateRegistered State = "REGISTERED"
	StateValidating State = "VALIDATING"
	StateRunning    State = "RUNNING"
	StateReported   State = "REPORTED"
	StateAborted    State = "ABORTED"
)

// IsTerminal reports whether the state ends the run.
func (s State) IsTerminal() bool {
	return s == StateReported || s == StateAborted
}

func allowedTransition(from, to State) bool {
	switch from {
	case StateRegistered:
		return to == StateValidating
	case StateValidating:
		return to == StateRunning || to == StateAborted
	case StateRunning:
		return to == StateReported
	default:
		return false
	}
}

// transition moves the orchestrator from an expected prior state, making any
// sequencing bug observable instead of silently skipping a stage.
func (o *Orchestrator) transition(from, to State) error {
	if o.state != from {
		return fmt.Errorf("invalid transition: expected state %s, in %s", from, o.state)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("disallowed transition %s -> %s", from, to)
	}
	o.state = to
	return nil
}
