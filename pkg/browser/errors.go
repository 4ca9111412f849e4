package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrExited is returned when the browser process dies during startup.
	ErrExited = errors.New("browser: process exited")

	// ErrClosed is returned by operations on a closed Session or Tab.
	ErrClosed = errors.New("browser: session closed")

	// ErrNoEndpoint is returned when the version handshake carries no
	// WebSocket debugger URL.
	ErrNoEndpoint = errors.New("browser: no websocket debugger url")
)

// Phase names the startup step that failed.
type Phase string

const (
	PhaseLaunch    Phase = "launch"
	PhaseConnect   Phase = "connect"
	PhaseHandshake Phase = "handshake"
)

// StartupError is returned by Supervisor.Start when a fresh instance cannot
// be brought up. Exhausted readiness budgets wrap retry.ErrExhausted.
type StartupError struct {
	Phase Phase
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("browser: startup failed during %s: %v", e.Phase, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// NavigationError reports a navigation the browser refused, such as a DNS
// failure (net::ERR_NAME_NOT_RESOLVED). The page may still have run script.
type NavigationError struct {
	URL  string
	Text string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("browser: navigate %s: %s", e.URL, e.Text)
}
