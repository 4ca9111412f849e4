package runner

import (
	"time"

	"github.com/warscan/warscan/pkg/finding"
)

// Stats tracks execution statistics of one run.
type Stats struct {
	Total      int
	StartIndex int

	// Processed counts targets the run got through, whatever the outcome.
	Processed int
	Scanned   int
	Deadline  int
	Timeouts  int
	Failed    int
	Persisted int
	Archived  int

	// Errors counts persistence and protocol errors over the run. The
	// alert counter is separate and resets after each alert.
	Errors        int
	Alerts        int
	BrowserStarts int

	Findings map[finding.Kind]int

	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall time of the run so far.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Progress returns completion percentage (0-100) of the whole worklist.
func (s *Stats) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.StartIndex+s.Processed) / float64(s.Total) * 100
}

// PagesPerMinute returns the processing rate.
func (s *Stats) PagesPerMinute() float64 {
	minutes := s.Duration().Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(s.Processed) / minutes
}

// TotalFindings sums Findings across kinds.
func (s *Stats) TotalFindings() int {
	n := 0
	for _, c := range s.Findings {
		n += c
	}
	return n
}
