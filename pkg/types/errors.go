package types

import (
	"errors"
	"fmt"
	"strings"
)

// Store operation errors. Typed errors below unwrap to these sentinels so
// callers can match with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("record not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPersistence     = errors.New("persistence failed")
	ErrRecovery        = errors.New("recovery failed")
	ErrClosed          = errors.New("store is shut down")
)

// ValidationError reports caller-supplied data that fails a field
// constraint. No state is mutated when it is returned.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError reports a durable write that failed after exhausting
// retries. In-memory state stays authoritative.
type PersistenceError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

// Unwrap returns ErrPersistence and the last write error.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// RecoveryError reports that no valid durable state could be loaded at
// startup. The store starts empty.
type RecoveryError struct {
	Path  string
	Tried []string // backups attempted, most recent first
	Err   error
}

func (e *RecoveryError) Error() string {
	msg := fmt.Sprintf("recover %s: %v", e.Path, e.Err)
	if len(e.Tried) > 0 {
		msg += fmt.Sprintf(" (tried backups: %s)", strings.Join(e.Tried, ", "))
	}
	return msg
}

// Unwrap returns ErrRecovery and the primary load error.
func (e *RecoveryError) Unwrap() []error { return []error{ErrRecovery, e.Err} }

// NotFound wraps ErrNotFound with the offending id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
