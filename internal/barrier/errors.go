package barrier

import "errors"

// Domain errors for the barrier package.
var (
	// ErrCommandNotFound is returned when no ledger row matches a
	// correlation ID.
	ErrCommandNotFound = errors.New("barrier: command not found")

	// ErrNotPending is returned when marking a command that has already
	// reached a terminal status.
	ErrNotPending = errors.New("barrier: command not pending")

	// ErrShutdown is returned when a manager operation is invoked after
	// Shutdown.
	ErrShutdown = errors.New("barrier: manager is shut down")
)
