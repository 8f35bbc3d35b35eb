// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package status models the lifecycle of a provisioning run as it is
// tracked per provider.
package status

import (
	"github.com/juju/errors"
)

// ErrInvalidTransition indicates an attempt to move a run status
// somewhere its current state does not permit.
const ErrInvalidTransition = errors.ConstError("invalid status transition")

// Status is the reconciliation state of a single provider within a run.
type Status string

const (
	// Pending is the initial state before planning has begun.
	Pending Status = "pending"

	// Planning covers pure local computation of the desired proxy
	// resources. No provider API is touched while planning.
	Planning Status = "planning"

	// Applying covers credential upserts and proxy materialization
	// against the provider API.
	Applying Status = "applying"

	// Verifying covers read-back confirmation of applied resources and
	// endpoint resolution.
	Verifying Status = "verifying"

	// Done is terminal: every resource was verified and resolved.
	Done Status = "done"

	// Failed is terminal: the provider could not reach Done.
	Failed Status = "failed"
)

// String is the printable form of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	return s == Done || s == Failed
}

// KnownStatus reports whether s is one of the defined states.
func (s Status) KnownStatus() bool {
	switch s {
	case Pending, Planning, Applying, Verifying, Done, Failed:
		return true
	}
	return false
}

// validTransitions holds the legal onward states for each status. Any
// non-terminal state may fail; phases are otherwise strictly ordered
// and never skipped.
var validTransitions = map[Status][]Status{
	Pending:   {Planning, Failed},
	Planning:  {Applying, Failed},
	Applying:  {Verifying, Failed},
	Verifying: {Done, Failed},
}

// FSM tracks one provider's status through a provisioning run,
// refusing illegal jumps. A transition to the current state is an
// idempotent no-op. FSM is not safe for concurrent use; each provider
// goroutine owns its own.
type FSM struct {
	entity  string
	current Status
}

// NewFSM returns a tracker for the named entity, starting at Pending.
func NewFSM(entity string) *FSM {
	return &FSM{entity: entity, current: Pending}
}

// Current returns the present status.
func (f *FSM) Current() Status {
	return f.current
}

// TransitionTo moves the tracker to target if the move is legal.
func (f *FSM) TransitionTo(target Status) error {
	if target == f.current {
		return nil
	}
	for _, allowed := range validTransitions[f.current] {
		if allowed == target {
			f.current = target
			return nil
		}
	}
	return errors.WithType(
		errors.Errorf("%s: cannot transition from %q to %q", f.entity, f.current, target),
		ErrInvalidTransition)
}
