package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Caller defects (validation) always surface; infrastructure
// degradation (index unavailable) is absorbed with a diagnostic.

// ErrNotFound reports an unknown record or session id on lookup.
var ErrNotFound = errors.New("not found")

// ErrIndexUnavailable reports a missing or corrupt vector index. Search and
// assembly degrade to keyword/topic ranking instead of failing.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// ErrBusy reports that a record-type write lock could not be acquired within
// the bounded retry budget. The write did not happen; the caller may retry.
var ErrBusy = errors.New("store busy, write lock not acquired")

// ValidationError reports a malformed or out-of-range field on an add call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a caller-input defect.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StoreIOError wraps a persistence failure on a write path. Never swallowed:
// silent data loss must not happen.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store io: %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// StoreIO wraps err as a StoreIOError, or returns nil when err is nil.
func StoreIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreIOError{Op: op, Err: err}
}
