package events

// ErrorEvent is emitted when an error occurs during a run.
// It can represent both recoverable and fatal errors.
type ErrorEvent struct {
	BaseEvent
	Index   int        `json:"index"`
	Target  string     `json:"target,omitempty"`
	Class   ErrorClass `json:"error_type"`
	Message string     `json:"message"`
	Fatal   bool       `json:"fatal"`
}
