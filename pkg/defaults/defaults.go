// Package defaults provides canonical default values for warscan.
// This is the SINGLE SOURCE OF TRUTH for runtime configuration defaults.
//
// Usage:
//
//	cfg.RestartEvery = defaults.RestartEvery
//	req.Header.Set("User-Agent", defaults.ArchiveUserAgent)
//
// Time values live in pkg/duration.
package defaults

import "fmt"

// Version is the current warscan version.
const Version = "1.3.0"

// ToolName is the name used in telemetry, logs and the user agent.
const ToolName = "warscan"

// ============================================================================
// ORCHESTRATION CADENCE
// ============================================================================
//
// Positions in the worklist drive browser restarts and heartbeats.
// ============================================================================

const (
	// RestartEvery replaces the browser process every N pages, starting at 0.
	RestartEvery = 1000

	// HeartbeatEvery sends an alive signal every N pages, starting at 0.
	HeartbeatEvery = 25

	// ErrorAlertThreshold raises a failure signal once the error counter
	// exceeds this value. The counter resets after each alert.
	ErrorAlertThreshold = 50

	// StartAttempts is how many fresh instances are tried before a run is
	// aborted.
	StartAttempts = 2
)

// ============================================================================
// BROWSER
// ============================================================================

const (
	// BrowserExecutable is looked up in PATH when no path is configured.
	BrowserExecutable = "chromium"

	// DebugPort is the remote-debugging port.
	DebugPort = 9222

	// DebugHost is where the debugging endpoint listens.
	DebugHost = "127.0.0.1"

	// ConnectAttempts bounds the TCP connectivity poll (at 200ms that is 40s).
	ConnectAttempts = 200

	// HandshakeAttempts bounds the version handshake poll (100s).
	HandshakeAttempts = 500

	// AcceptLanguage is sent with every page request.
	AcceptLanguage = "en-US,en;q=0.8"

	// ProfilePrefix names the disposable profile directories.
	ProfilePrefix = "warscan-profile-"
)

// ============================================================================
// SCROLL SIMULATION
// ============================================================================

const (
	// ScrollStepMin and ScrollStepMax bound one wheel step in CSS pixels.
	ScrollStepMin = 100
	ScrollStepMax = 300

	// ScrollDepthMin and ScrollDepthMax bound the scroll target as a share of
	// the page height (height/2.5 and height/1.5).
	ScrollDepthMin = 0.4
	ScrollDepthMax = 2.0 / 3.0

	// ScrollMaxSteps caps wheel events per page.
	ScrollMaxSteps = 200
)

// ============================================================================
// COLLABORATORS
// ============================================================================

const (
	// ArchiveThreshold archives a page once it has more probes than this.
	ArchiveThreshold = 2

	// ArchiveEndpoint is the Wayback Machine save endpoint.
	ArchiveEndpoint = "https://web.archive.org"

	// ArchiveUserAgent identifies archival requests.
	ArchiveUserAgent = "extension-scanner"

	// ArchivePerMinute paces archival requests.
	ArchivePerMinute = 12

	// HealthTags, HealthTimeout and HealthGrace describe the check created
	// on the health-check service. Timeout and grace are in seconds.
	HealthTags    = "prod scanserver"
	HealthTimeout = 1080
	HealthGrace   = 900

	// HTTPAttempts bounds tries of one archive save or health ping.
	HTTPAttempts = 3

	// MetricsAddr is the default Prometheus listen address.
	MetricsAddr = ":9464"
)

// ============================================================================
// FILES
// ============================================================================

const (
	// DatabaseFile is the SQLite file used when none is configured.
	DatabaseFile = "warscan.db"

	// CheckpointFile is the resume file used when none is configured.
	CheckpointFile = "warscan.resume"

	// SplitChunkSize is the round-robin chunk size of the split command.
	SplitChunkSize = 1

	// URLScheme is prefixed to worklist entries that have none.
	URLScheme = "http://"
)

// UserAgent returns the warscan user agent for the given component.
func UserAgent(component string) string {
	if component == "" {
		return fmt.Sprintf("%s/%s", ToolName, Version)
	}
	return fmt.Sprintf("%s/%s (%s)", ToolName, Version, component)
}
