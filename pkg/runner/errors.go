package runner

import "errors"

// Sentinel errors for runner failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrBrowserStart indicates no browser instance could be started
	// within the configured attempts. It is fatal for the run.
	ErrBrowserStart = errors.New("runner: browser start failed")

	// ErrEmptyWorklist indicates there is nothing to scan.
	ErrEmptyWorklist = errors.New("runner: empty worklist")

	// ErrMissingCollaborator indicates a required Config field is nil.
	ErrMissingCollaborator = errors.New("runner: missing collaborator")
)
