package events

import "github.com/warscan/warscan/pkg/finding"

// PageEvent is emitted after every worklist target, whatever the outcome.
type PageEvent struct {
	BaseEvent
	Index      int                  `json:"index"`
	URL        string               `json:"url"`
	Outcome    Outcome              `json:"outcome"`
	DurationMs float64              `json:"duration_ms"`
	Findings   map[finding.Kind]int `json:"findings,omitempty"`
	Persisted  bool                 `json:"persisted"`
	Archived   bool                 `json:"archived"`

	// Result is the page result handed to persistence, nil when the visit
	// produced none.
	Result *finding.PageResult `json:"-"`
}

// Total returns the number of findings across kinds.
func (e *PageEvent) Total() int {
	n := 0
	for _, c := range e.Findings {
		n += c
	}
	return n
}
