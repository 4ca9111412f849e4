package scanner

import "errors"

var (
	// ErrNavigationTimeout means the browser did not commit the navigation
	// within the navigation timeout. The result carries whatever was
	// collected, but nothing meaningful is expected in it.
	ErrNavigationTimeout = errors.New("scanner: navigation timed out")

	// ErrDeadlineExceeded means the hard page deadline cut the visit short.
	// The result is partial but valid.
	ErrDeadlineExceeded = errors.New("scanner: page deadline exceeded")

	// ErrTransport means the tab or browser stopped answering. No result
	// is returned and the browser should be checked before reuse.
	ErrTransport = errors.New("scanner: protocol transport failure")
)
