// Package events defines the run events the scan orchestrator emits.
// All events are designed for JSON serialization.
//
// The BaseEvent struct is embedded in every specific event type
// (PageEvent, ErrorEvent, RestartEvent, ...).
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of run event.
type EventType string

const (
	// EventTypeStart indicates a scan run has started.
	EventTypeStart EventType = "start"
	// EventTypePage indicates one worklist target was processed.
	EventTypePage EventType = "page"
	// EventTypeError indicates an error occurred.
	EventTypeError EventType = "error"
	// EventTypeRestart indicates a fresh browser instance was started.
	EventTypeRestart EventType = "browser-restart"
	// EventTypeComplete indicates a scan run has ended.
	EventTypeComplete EventType = "complete"
)

// Outcome classifies how a page visit ended.
type Outcome string

const (
	// OutcomeScanned means the visit completed and the result was kept.
	OutcomeScanned Outcome = "scanned"
	// OutcomeDeadline means the hard deadline cut the visit short. The
	// partial result was kept.
	OutcomeDeadline Outcome = "deadline"
	// OutcomeTimeout means navigation timed out and nothing was kept.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeError means the visit failed.
	OutcomeError Outcome = "error"
)

// ErrorClass groups errors for counting and alerting.
type ErrorClass string

const (
	ErrorNavigationTimeout ErrorClass = "navigation_timeout"
	ErrorTransport         ErrorClass = "transport"
	ErrorStore             ErrorClass = "store"
	ErrorBrowserStart      ErrorClass = "browser_start"
	ErrorCheckpoint        ErrorClass = "checkpoint"
	ErrorInternal          ErrorClass = "internal"
)

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// NewBase returns a BaseEvent stamped with the current time.
func NewBase(t EventType, scanID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now(), Scan: scanID}
}

// NewScanID returns a fresh run identifier.
func NewScanID() string {
	return "scan-" + uuid.NewString()
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the identifier of the run that produced this event.
func (e BaseEvent) ScanID() string { return e.Scan }
