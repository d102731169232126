package engine

import (
	"errors"
	"fmt"
)

// Store implementations report these sentinels so the engine can decide
// between retrying, refreshing, and dropping work.
var (
	// ErrConflict signals an optimistic-update collision: the row moved
	// under us. Retried once with refreshed state, then surfaced as a
	// skipped item for this pass.
	ErrConflict = errors.New("version conflict")

	// ErrNotFound signals that the referenced row no longer exists.
	ErrNotFound = errors.New("not found")
)

// TransientError marks a store failure worth retrying on a later pass.
// It never aborts the batch the item belongs to.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a TransientError anywhere in its
// chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// FatalError marks an unclassified failure that aborts the current pass.
// The scheduler still returns to idle so the next tick retries naturally.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as pass-aborting.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ValidationError marks malformed input: logged, dropped, never retried.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError anywhere in its
// chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
