package events

// RestartEvent is emitted whenever a browser instance is started.
type RestartEvent struct {
	BaseEvent
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
	PID      int    `json:"pid"`
	Endpoint string `json:"endpoint"`
	Product  string `json:"product,omitempty"`
	Attempts int    `json:"attempts"`
}
