package statesync

import "errors"

// CriticalError wraps a protocol-correctness failure: malformed data that
// indicates a buggy peer, a hash-collision attempt, or a protocol change.
// The driver is expected to discard the scheduler state and restart sync
// against a different peer rather than retry the same response list.
type CriticalError struct{ Err error }

func (e *CriticalError) Error() string { return e.Err.Error() }
func (e *CriticalError) Unwrap() error { return e.Err }

// NotCriticalError wraps protocol noise that is safe to ignore: it never
// alters scheduler state and never needs to be surfaced to the caller of
// ProcessResponses.
type NotCriticalError struct{ Err error }

func (e *NotCriticalError) Error() string { return e.Err.Error() }
func (e *NotCriticalError) Unwrap() error { return e.Err }

var (
	// ErrCannotDecodeMPTNode: a StateNode/StorageNode response's bytes do
	// not decode as a valid MPT node. Critical.
	ErrCannotDecodeMPTNode = errors.New("statesync: cannot decode mpt node")

	// ErrNotAccountLeafNode: a StateNode leaf's value does not decode as a
	// valid account record. Critical.
	ErrNotAccountLeafNode = errors.New("statesync: leaf value is not a valid account")

	// ErrNotRequested: a response hash is not in active. Non-critical; a
	// well-behaved driver never triggers this.
	ErrNotRequested = errors.New("statesync: response hash was not requested")

	// ErrAlreadyProcessed: a response hash's request already has data.
	// Non-critical; a well-behaved driver never triggers this.
	ErrAlreadyProcessed = errors.New("statesync: response hash already processed")
)
