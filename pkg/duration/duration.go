// Package duration provides canonical time constants for warscan.
// This is the SINGLE SOURCE OF TRUTH for time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.HTTPProbing)
//	Deadline: duration.PageDeadline,
package duration

import "time"

// ============================================================================
// PAGE VISIT
// ============================================================================

const (
	// PageDeadline is the hard ceiling on one page visit (40s).
	PageDeadline = 40 * time.Second

	// Navigation is the default protocol-level navigation timeout (30s).
	Navigation = 30 * time.Second

	// PostLoadWait is the default settle time after load (5s).
	PostLoadWait = 5 * time.Second

	// ScrollPauseMin and ScrollPauseMax bound the pause between wheel steps.
	ScrollPauseMin = 50 * time.Millisecond
	ScrollPauseMax = 150 * time.Millisecond

	// TabClose bounds closing a tab (1s plus slack for detach).
	TabClose = 3 * time.Second
)

// ============================================================================
// BROWSER LIFECYCLE
// ============================================================================

const (
	// ReadinessPoll is the interval between readiness probes (200ms).
	ReadinessPoll = 200 * time.Millisecond

	// ReadinessDial bounds a single TCP probe of the debugging port.
	ReadinessDial = 1 * time.Second

	// KillGrace is how long terminated processes get before SIGKILL (3s).
	KillGrace = 3 * time.Second

	// KillPoll is the interval for checking whether processes exited.
	KillPoll = 50 * time.Millisecond

	// BrowserClose bounds disconnecting from a browser (5s).
	BrowserClose = 5 * time.Second

	// SessionConnect bounds attaching to the debugging WebSocket (10s).
	SessionConnect = 10 * time.Second

	// TabOpen bounds creating and attaching a new tab (10s).
	TabOpen = 10 * time.Second

	// LivenessProbe bounds the browser liveness check (2s).
	LivenessProbe = 2 * time.Second
)

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// HTTPProbing is for health-check pings and the version endpoint (5s).
	HTTPProbing = 5 * time.Second

	// HTTPArchive is for Wayback Machine save requests, which are slow (2min).
	HTTPArchive = 2 * time.Minute

	// RetryInitial and RetryMax shape the backoff between tries of a
	// temporarily failing HTTP call (1s doubling, capped at 10s).
	RetryInitial = 1 * time.Second
	RetryMax     = 10 * time.Second

	// Shutdown bounds metrics server and exporter shutdown (5s).
	Shutdown = 5 * time.Second

	// ExporterConnect bounds creating the OTLP exporter (10s).
	ExporterConnect = 10 * time.Second
)
