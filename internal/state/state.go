// Package state governs the legal ordering of resolution phases.
package state

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid resolution state transition")

// ResolutionState is one phase of a resolution.
type ResolutionState int

const (
	ContextualLookup ResolutionState = iota
	DefinitionLookup
	Autowire
	Evaluate
	Instantiate
	Success
	Failure
	NotFound
)

var stateNames = map[ResolutionState]string{
	ContextualLookup: "ContextualLookup",
	DefinitionLookup: "DefinitionLookup",
	Autowire:         "Autowire",
	Evaluate:         "Evaluate",
	Instantiate:      "Instantiate",
	Success:          "Success",
	Failure:          "Failure",
	NotFound:         "NotFound",
}

func (s ResolutionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// IsTerminal reports whether no transition leaves s.
func (s ResolutionState) IsTerminal() bool {
	return s == Success || s == Failure || s == NotFound
}

var transitions = map[ResolutionState][]ResolutionState{
	ContextualLookup: {DefinitionLookup},
	DefinitionLookup: {Autowire},
	Autowire:         {Evaluate, NotFound},
	Evaluate:         {Instantiate},
	Instantiate:      {Success, Failure, NotFound},
}

// CanTransition reports whether from → to appears in the transition table.
func CanTransition(from, to ResolutionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a controller usage bug: an edge missing from the
// transition table, or a Success/Failure reached without a hit.
type InvalidTransitionError struct {
	From ResolutionState
	To   ResolutionState
	Hit  bool
}

func (e InvalidTransitionError) Error() string {
	if CanTransition(e.From, e.To) {
		return fmt.Sprintf("invalid resolution state transition %s -> %s: terminal state requires a hit", e.From, e.To)
	}
	return fmt.Sprintf("invalid resolution state transition %s -> %s", e.From, e.To)
}

func (e InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Controller tracks the state of a single resolution. It is not safe for
// concurrent use and is never shared between resolutions.
type Controller struct {
	current ResolutionState
	history []ResolutionState
}

// NewController returns a controller in the ContextualLookup state.
func NewController() *Controller {
	return &Controller{current: ContextualLookup}
}

// State returns the current state.
func (c *Controller) State() ResolutionState {
	return c.current
}

// History returns the states visited so far, starting with the initial one.
func (c *Controller) History() []ResolutionState {
	result := make([]ResolutionState, 0, len(c.history)+1)
	result = append(result, ContextualLookup)
	return append(result, c.history...)
}

// AdvanceTo moves to next. Success and Failure additionally require hit.
func (c *Controller) AdvanceTo(next ResolutionState, hit bool) error {
	if !CanTransition(c.current, next) {
		return InvalidTransitionError{From: c.current, To: next, Hit: hit}
	}

	if (next == Success || next == Failure) && !hit {
		return InvalidTransitionError{From: c.current, To: next, Hit: hit}
	}

	c.current = next
	c.history = append(c.history, next)
	return nil
}

// IsTerminal reports whether the controller reached a terminal state.
func (c *Controller) IsTerminal() bool {
	return c.current.IsTerminal()
}
