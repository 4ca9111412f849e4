package events

// StartEvent is emitted once before the first target is processed.
type StartEvent struct {
	BaseEvent
	Host         string    `json:"host"`
	Input        string    `json:"input,omitempty"`
	TotalTargets int       `json:"total_targets"`
	StartIndex   int       `json:"start_index"`
	Config       RunConfig `json:"config"`
}

// RunConfig contains the orchestration settings of a run.
type RunConfig struct {
	RestartEvery      int     `json:"restart_every"`
	HeartbeatEvery    int     `json:"heartbeat_every"`
	ErrorThreshold    int     `json:"error_threshold"`
	NavigationTimeout float64 `json:"navigation_timeout_sec"`
	PageDeadline      float64 `json:"page_deadline_sec"`
	Archive           bool    `json:"archive"`
}
