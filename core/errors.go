package core

import (
	"errors"
	"fmt"
)

// TransientServiceError wraps a failed embedding or completion call. Callers
// retry with bounded backoff and then degrade the affected step instead of
// failing the turn.
type TransientServiceError struct {
	Op  string
	Err error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("transient service error in %s: %v", e.Op, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientServiceError.
func IsTransient(err error) bool {
	var t *TransientServiceError
	return errors.As(err, &t)
}

// StorageError wraps a failed session, profile or vector persistence
// operation. Surfaced to the caller as a turn-level failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError marks malformed extraction output or an unknown memory
// type. The offending item is dropped and processing continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// NotFoundError reports a lookup of an unknown session. Profile lookups never
// produce it: a missing profile is created lazily instead.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
