// Package services defines the business logic of the sync core: the relay's
// push/pull service, the terminal outbox, change replay and the sync client.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Errors are wrapped with context via fmt.Errorf("%w: ...") and checked with
// errors.Is. Translation into HTTP status codes happens in the handler layer;
// the sync client folds them into a coarse Status.
package services

import "errors"

var (
	// ErrInvalidRequest indicates a malformed push or pull: missing terminal
	// or store id, unknown action, or an empty entity type.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNetwork indicates the relay could not be reached, timed out, or
	// answered with a server error. The cycle can be retried.
	ErrNetwork = errors.New("relay unreachable")

	// ErrApply is returned when replaying a remote change failed and the
	// apply policy halts the batch.
	ErrApply = errors.New("apply failed")

	// ErrStorage wraps local or relay persistence failures.
	ErrStorage = errors.New("storage failure")

	// ErrCycleInProgress is returned by RunCycle when another cycle is
	// already running on this terminal.
	ErrCycleInProgress = errors.New("sync cycle already in progress")

	// ErrUnknownEntity is returned when no apply function is registered for
	// an entity type.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrTerminalNotRegistered is returned when an operation needs a
	// relay-assigned terminal id that the terminal does not have yet.
	ErrTerminalNotRegistered = errors.New("terminal not registered")
)
