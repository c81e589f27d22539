package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session exists but its retention
	// window has elapsed. Callers can distinguish it from ErrSessionNotFound
	// to decide whether starting a fresh session is appropriate.
	ErrSessionExpired = errors.New("session expired")

	// ErrFileNotFound is returned when no file exists for the given
	// session/file id pair.
	ErrFileNotFound = errors.New("file not found")
)

// CapacityKind names the capacity bound a CapacityError reports against.
type CapacityKind string

const (
	// CapacitySessions is the global live-session bound.
	CapacitySessions CapacityKind = "sessions"
	// CapacityFiles is the per-session file bound.
	CapacityFiles CapacityKind = "files"
)

// CapacityError reports a rejected insert against a hard capacity bound.
// It is client-correctable; retrying without freeing capacity will not help.
type CapacityError struct {
	Kind  CapacityKind
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s capacity exceeded (limit %d)", e.Kind, e.Limit)
}

// ValidationError reports a missing or malformed field in an operation
// descriptor. Field names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid descriptor: missing field %q", e.Field)
	}
	return fmt.Sprintf("invalid descriptor field %q: %s", e.Field, e.Reason)
}

// UnsupportedOperationError reports an unknown descriptor tag or method.
type UnsupportedOperationError struct {
	Type string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q", e.Type)
}

// UnknownColumnError reports a descriptor referencing a column absent from
// the target table.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// UnsupportedColumnTypeError reports a column whose dtype cannot serve the
// requested method (e.g. correlation over a string column).
type UnsupportedColumnTypeError struct {
	Column string
	DType  string
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("column %q has unsupported type %s", e.Column, e.DType)
}

// StorageError wraps an I/O failure reading or writing persisted state. It
// is the only error class eligible for bounded retry at the orchestration
// boundary.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError tagged with the failing
// operation. Returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryable reports whether the error is a transient storage failure that
// a caller may retry.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
