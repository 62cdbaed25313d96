package floe

import (
	"errors"
	"fmt"
)

// Error kind constants for classification and matching
const (
	// ErrorKindActivityNotFound indicates a resumption targeted an activity
	// that is not present in the workflow graph.
	ErrorKindActivityNotFound = "activity_not_found"

	// ErrorKindContextNotFound indicates a resumption targeted an activity
	// execution context ID that is not present in the persisted state.
	ErrorKindContextNotFound = "context_not_found"

	// ErrorKindBookmarkNotFound indicates the supplied bookmark ID did not
	// match any persisted bookmark.
	ErrorKindBookmarkNotFound = "bookmark_not_found"

	// ErrorKindStateVersionMismatch indicates persisted state was written by
	// a newer engine than this one.
	ErrorKindStateVersionMismatch = "state_version_mismatch"

	// ErrorKindScheduleRejected indicates an attempt to schedule an activity
	// that is not reachable in the graph.
	ErrorKindScheduleRejected = "schedule_rejected"

	// ErrorKindActivityFault indicates an activity callback returned an error
	// or panicked. Faults are captured as incidents rather than failing the
	// run call.
	ErrorKindActivityFault = "activity_fault"

	// ErrorKindInvalidOptions indicates the run options were contradictory,
	// e.g. both BookmarkID and ActivityHandle were supplied.
	ErrorKindInvalidOptions = "invalid_options"
)

// Sentinel errors for the engine's error kinds. Callers match with errors.Is.
var (
	ErrActivityNotFound     = errors.New(ErrorKindActivityNotFound)
	ErrContextNotFound      = errors.New(ErrorKindContextNotFound)
	ErrBookmarkNotFound     = errors.New(ErrorKindBookmarkNotFound)
	ErrStateVersionMismatch = errors.New(ErrorKindStateVersionMismatch)
	ErrScheduleRejected     = errors.New(ErrorKindScheduleRejected)
	ErrInvalidOptions       = errors.New(ErrorKindInvalidOptions)
)

// EngineError is a structured error with a kind used for classification.
// It supports Go's error wrapping patterns with Unwrap().
type EngineError struct {
	Kind    string      `json:"kind"`
	Cause   string      `json:"cause"`
	Details interface{} `json:"details,omitempty"`
	Wrapped error       `json:"-"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *EngineError) Unwrap() error {
	return e.Wrapped
}

// NewEngineError creates a new EngineError with the specified kind and cause.
func NewEngineError(kind, cause string) *EngineError {
	return &EngineError{Kind: kind, Cause: cause, Wrapped: sentinelForKind(kind)}
}

// NewEngineErrorf creates a new EngineError with a formatted cause.
func NewEngineErrorf(kind, format string, args ...any) *EngineError {
	return NewEngineError(kind, fmt.Sprintf(format, args...))
}

func sentinelForKind(kind string) error {
	switch kind {
	case ErrorKindActivityNotFound:
		return ErrActivityNotFound
	case ErrorKindContextNotFound:
		return ErrContextNotFound
	case ErrorKindBookmarkNotFound:
		return ErrBookmarkNotFound
	case ErrorKindStateVersionMismatch:
		return ErrStateVersionMismatch
	case ErrorKindScheduleRejected:
		return ErrScheduleRejected
	case ErrorKindInvalidOptions:
		return ErrInvalidOptions
	}
	return nil
}

// ClassifyError returns the EngineError for err, wrapping plain errors as
// activity faults. Activity callbacks return ordinary errors; everything that
// reaches the incident log goes through here first.
func ClassifyError(err error) *EngineError {
	var engineError *EngineError
	if errors.As(err, &engineError) {
		return engineError
	}
	return &EngineError{
		Kind:    ErrorKindActivityFault,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorKind checks if an error matches a specified error kind.
func MatchesErrorKind(err error, kind string) bool {
	return ClassifyError(err).Kind == kind
}
