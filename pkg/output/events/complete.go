package events

// CompleteEvent is emitted when a run finishes, successfully or not.
type CompleteEvent struct {
	BaseEvent
	Success     bool    `json:"success"`
	ExitCode    int     `json:"exit_code"`
	ExitReason  string  `json:"exit_reason"`
	Processed   int     `json:"processed"`
	Persisted   int     `json:"persisted"`
	Errors      int     `json:"errors"`
	Restarts    int     `json:"restarts"`
	DurationSec float64 `json:"duration_sec"`
}
