// Package exitcode maps the outcome of a command to a process exit code.
//
// Exit codes:
//   - 0: worklist exhausted (or command succeeded)
//   - 1: fatal-for-run error
//   - 2: invalid flags or configuration
//   - 130: interrupted by SIGINT or SIGTERM
package exitcode

import (
	"context"
	"errors"
)

// Code represents a process exit code.
type Code int

const (
	// Success indicates the command completed.
	Success Code = 0
	// Fatal indicates a fatal-for-run error, such as a browser that never
	// became reachable.
	Fatal Code = 1
	// Usage indicates invalid flags or configuration.
	Usage Code = 2
	// Interrupted indicates the run was stopped by a signal.
	Interrupted Code = 130
)

var codeStrings = map[Code]string{
	Success:     "success",
	Fatal:       "fatal_error",
	Usage:       "invalid_configuration",
	Interrupted: "scan_interrupted",
}

// String returns the short name of the code.
func (c Code) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return "unknown"
}

// UsageError marks an error as caused by invalid input.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// FromError returns the exit code for err. Cancellation maps to
// Interrupted, a UsageError to Usage and anything else to Fatal.
func FromError(err error) Code {
	var usage *UsageError
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled):
		return Interrupted
	case errors.As(err, &usage):
		return Usage
	default:
		return Fatal
	}
}
