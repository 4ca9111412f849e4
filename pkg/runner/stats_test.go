package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warscan/warscan/pkg/finding"
)

func TestStats(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Stats{
		Total:      200,
		StartIndex: 50,
		Processed:  30,
		Findings: map[finding.Kind]int{
			finding.KindProbeRequest:        4,
			finding.KindCrossContextMessage: 2,
		},
		StartTime: start,
		EndTime:   start.Add(2 * time.Minute),
	}

	assert.Equal(t, 2*time.Minute, s.Duration())
	assert.InDelta(t, 40.0, s.Progress(), 0.001)
	assert.InDelta(t, 15.0, s.PagesPerMinute(), 0.001)
	assert.Equal(t, 6, s.TotalFindings())
}

func TestStats_Empty(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Progress())
	assert.Zero(t, s.TotalFindings())

	s.StartTime = time.Now()
	s.EndTime = s.StartTime
	assert.Zero(t, s.PagesPerMinute())
}
