package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for boundary mapping and status reporting.
type ErrorKind string

const (
	// KindInvalidRequest covers malformed parameters and invariant violations
	// in submitted data.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindConflict covers duplicate starts and operations attempted in a wrong
	// task state.
	KindConflict ErrorKind = "conflict"

	// KindEngineFailure covers downstream model or tool failures and timeouts.
	KindEngineFailure ErrorKind = "engine_failure"

	// KindIOFailure covers filesystem and serialization faults.
	KindIOFailure ErrorKind = "io_failure"

	// KindCancelled marks cooperative cancellation.
	KindCancelled ErrorKind = "cancelled"

	// KindCorrupt marks on-disk state that failed validation.
	KindCorrupt ErrorKind = "corrupt"
)

// Error attaches an ErrorKind to an underlying error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation context.
func E(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf formats a new kinded error.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Unclassified errors report KindIOFailure.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrSegmentNotFound),
		errors.Is(err, ErrInvalidLanguage), errors.Is(err, ErrInvalidSegmentTable):
		return KindInvalidRequest
	case errors.Is(err, ErrTaskExists), errors.Is(err, ErrWrongState),
		errors.Is(err, ErrTaskBusy):
		return KindConflict
	case errors.Is(err, ErrCorruptState):
		return KindCorrupt
	}
	return KindIOFailure
}

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common errors shared across packages.
var (
	// ErrTaskNotFound indicates no task directory or registry entry exists
	// for the given id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists indicates a start was attempted for an id that already
	// has a workspace.
	ErrTaskExists = errors.New("task already exists")

	// ErrTaskBusy indicates another operation currently holds the task.
	ErrTaskBusy = errors.New("task is busy")

	// ErrWrongState indicates the operation is not valid in the task's
	// current status.
	ErrWrongState = errors.New("operation not valid in current task state")

	// ErrCorruptState indicates on-disk task state failed validation.
	ErrCorruptState = errors.New("task state is corrupt")

	// ErrSegmentNotFound indicates the referenced segment id is absent.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrInvalidSegmentTable indicates a segment table violates invariants.
	ErrInvalidSegmentTable = errors.New("invalid segment table")

	// ErrInvalidLanguage indicates an unrecognized language code.
	ErrInvalidLanguage = errors.New("invalid language code")

	// ErrMediaUnsupported indicates the input container or codec cannot be
	// processed.
	ErrMediaUnsupported = errors.New("unsupported media input")

	// ErrNoVideoStream indicates a mux was requested for an audio-only task.
	ErrNoVideoStream = errors.New("source has no video stream")

	// ErrCancelled marks cooperative task cancellation.
	ErrCancelled = errors.New("cancelled")
)
