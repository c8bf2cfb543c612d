package core

import "errors"

// Error taxonomy. Every layer wraps the matching sentinel with
// fmt.Errorf("...: %w", ...) so callers can classify failures with errors.Is.
var (
	// ErrTransientIO marks store or network failures. The current step fails
	// and the caller may resubmit the turn.
	ErrTransientIO = errors.New("transient io failure")
	// ErrModel marks a failed, refused or malformed completion.
	ErrModel = errors.New("model failure")
	// ErrToolExecution marks a tool failure. It never escapes a turn: the
	// dispatcher folds it into a tool result the model can read.
	ErrToolExecution = errors.New("tool execution failure")
	// ErrConfiguration marks missing or invalid wiring. The engine refuses to
	// start.
	ErrConfiguration = errors.New("configuration failure")
	// ErrInvalidInput marks a rejected caller request such as an empty
	// thread id. Nothing is read or written.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCheckpointNotFound is returned by CheckpointStore.Load for unknown threads.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointConflict is returned when a snapshot's version does not
	// follow the stored one.
	ErrCheckpointConflict = errors.New("checkpoint version conflict")
	// ErrMaxModelCalls is returned when a turn exceeds its model call budget.
	// It always arrives wrapped together with ErrModel.
	ErrMaxModelCalls = errors.New("exceeded max model calls")
)
