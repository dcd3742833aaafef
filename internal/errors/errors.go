package errors

import (
	"errors"
)

// Sentinel errors for the store's error taxonomy
var (
	// ErrValidation - malformed run id, path traversal attempt, or unknown event type; rejected before any I/O
	ErrValidation = errors.New("validation error")

	// ErrNotFound - run directory or object absent; terminal, not retried
	ErrNotFound = errors.New("not found")

	// ErrAllocation - sequence allocator exhausted its retry budget; the caller may re-issue the emit
	ErrAllocation = errors.New("allocation error")

	// ErrPartialWrite - event file durably written but the state update failed; the event must not be resubmitted
	ErrPartialWrite = errors.New("partial write")

	// ErrArchive - one or more object-storage transfers failed
	ErrArchive = errors.New("archive error")

	// ErrConflict - concurrent mutation lost a race; safe to retry
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient I/O or network error; safe to retry
	ErrTransient = errors.New("transient error")

	// ErrInternal - anything that escaped the categories above
	ErrInternal = errors.New("internal error")
)
