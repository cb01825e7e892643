package workflow

import (
	"errors"
	"fmt"
)

// Error codes returned to API callers. Guard violations always map to one of
// these, never to a generic 500.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"
	CodeConflict           = "CONFLICT"
)

// Sentinel errors for the workflow taxonomy. All guards run before any
// mutation is applied, so a returned error implies no state change.
var (
	ErrNotFound           = errors.New("record or activity not found")
	ErrForbidden          = errors.New("actor is not allowed to perform this action")
	ErrInvalidTransition  = errors.New("activity state transition not allowed")
	ErrPreconditionFailed = errors.New("phase aggregate precondition not satisfied")
	ErrAlreadyInitialized = errors.New("progress already initialized for this user")
	ErrConflict           = errors.New("record was modified concurrently")
)

// Code maps a workflow error to its stable code, or "" for unknown errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrPreconditionFailed):
		return CodePreconditionFailed
	case errors.Is(err, ErrAlreadyInitialized):
		return CodeAlreadyInitialized
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return ""
	}
}

// Retryable reports whether re-loading and re-applying the command may
// succeed. Only concurrent-write conflicts qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

func invalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
