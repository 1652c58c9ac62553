package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflictNotOpen is returned when resolving a conflict that already left the open state.
var ErrConflictNotOpen = errors.New("conflict is not open")

// ValidationError reports missing or malformed input. It has no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OracleError reports a failed or timed out model call.
type OracleError struct {
	Op  string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// Timeout reports whether the call was cut off by a deadline.
func (e *OracleError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ParseError reports an oracle response that could not be interpreted.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError reports a persistence failure. Fatal is set when a rollback failed
// and the store may hold a partial write.
type StorageError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *StorageError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("storage %s (rollback failed, store may be inconsistent): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the whole attempt may succeed.
func Retryable(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
