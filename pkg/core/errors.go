package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInvalidAuthor means the author identifier failed sanitization.
	// It is rejected before any I/O happens.
	ErrInvalidAuthor = errors.New("invalid author identifier")

	// ErrWorkspaceBusy means a commit is already in flight for this author.
	ErrWorkspaceBusy = errors.New("workspace busy: commit already in progress")

	// ErrMalformedPatch means the input did not parse as a JSON-patch
	// operation list.
	ErrMalformedPatch = errors.New("malformed patch")

	// ErrNothingStaged means a commit was requested for a workspace with
	// no pending operations.
	ErrNothingStaged = errors.New("nothing staged")
)

// ConflictError reports the first patch operation that failed against the
// current document. The pending workspace state is left intact so the
// client can reconcile and retry.
type ConflictError struct {
	Index  int    // position of the failing operation in the patch
	Op     string // operation kind (add, remove, replace, move, copy, test)
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("patch conflict at operation %d (%s): %s", e.Index, e.Op, e.Reason)
}

// StoreError wraps a failure of the underlying versioned store.
// Callers may retry; HEAD is guaranteed to still point at a valid state.
type StoreError struct {
	Op  string // the store operation that failed (read, write, commit, log)
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
