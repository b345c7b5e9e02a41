package engine

import (
	"fmt"
)

// Phase is a step of the per-frame protocol. A frame walks the phases in a
// single fixed order:
//
//	idle -> seeded -> synced -> prepared -> committed -> executed -> idle
//
// There are no skip or retry edges.
type Phase string

const (
	// PhaseIdle is the state between frames.
	PhaseIdle Phase = "idle"

	// PhaseSeeded means the drivers entry has been written to the blackboard.
	PhaseSeeded Phase = "seeded"

	// PhaseSynced means the scene index finished data discovery.
	PhaseSynced Phase = "synced"

	// PhasePrepared means every task ran Prepare.
	PhasePrepared Phase = "prepared"

	// PhaseCommitted means the render delegate committed resources.
	PhaseCommitted Phase = "committed"

	// PhaseExecuted means every task ran Execute.
	PhaseExecuted Phase = "executed"
)

// framePhases lists the phases in protocol order.
var framePhases = []Phase{
	PhaseIdle,
	PhaseSeeded,
	PhaseSynced,
	PhasePrepared,
	PhaseCommitted,
	PhaseExecuted,
}

// Phases returns the phases a frame passes through after leaving idle.
func Phases() []Phase {
	out := make([]Phase, len(framePhases)-1)
	copy(out, framePhases[1:])
	return out
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	if p.index() < 0 {
		return fmt.Errorf("invalid phase: %s", p)
	}
	return nil
}

// Next returns the phase that must follow p.
func (p Phase) Next() Phase {
	i := p.index()
	if i < 0 || i == len(framePhases)-1 {
		return PhaseIdle
	}
	return framePhases[i+1]
}

// Step returns the name of the work that moves a frame into p, as used in
// logs, spans and metrics.
func (p Phase) Step() string {
	switch p {
	case PhaseSeeded:
		return "seed"
	case PhaseSynced:
		return "sync"
	case PhasePrepared:
		return "prepare"
	case PhaseCommitted:
		return "commit"
	case PhaseExecuted:
		return "execute"
	default:
		return "idle"
	}
}

func (p Phase) index() int {
	for i, q := range framePhases {
		if q == p {
			return i
		}
	}
	return -1
}

// Transition validates a move from one phase to another. Only the single
// forward edge out of each phase is allowed.
func Transition(from, to Phase) error {
	if err := from.Validate(); err != nil {
		return NewInternalError("unknown source phase", err).WithCode(ErrCodeInvalidTransition)
	}
	if err := to.Validate(); err != nil {
		return NewInternalError("unknown target phase", err).WithCode(ErrCodeInvalidTransition)
	}
	if from.Next() != to {
		return NewInternalError(
			fmt.Sprintf("disallowed phase transition: %s -> %s", from, to), nil,
		).WithCode(ErrCodeInvalidTransition).WithPhase(from)
	}
	return nil
}

// phaseMachine tracks the phase of the frame in flight.
type phaseMachine struct {
	current Phase
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{current: PhaseIdle}
}

// advance moves to the next phase. A refused transition is an engine bug,
// so it panics instead of returning.
func (m *phaseMachine) advance(to Phase) {
	if err := Transition(m.current, to); err != nil {
		panic(err)
	}
	m.current = to
}
