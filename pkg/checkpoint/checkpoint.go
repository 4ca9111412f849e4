// Package checkpoint records scan progress so an interrupted run can resume
// after the last completed worklist index.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/jsonutil"
)

// FormatVersion is written into every checkpoint file.
const FormatVersion = "1"

var (
	// ErrNoState is returned when a checkpoint is used before Init or Load.
	ErrNoState = errors.New("checkpoint: not initialized")

	// ErrMismatch is returned when a checkpoint belongs to another worklist.
	ErrMismatch = errors.New("checkpoint: worklist mismatch")
)

// State represents the checkpoint state for a resumable scan.
type State struct {
	// Version of the checkpoint format
	Version string `json:"version"`

	// Input is the worklist file the indices refer to.
	Input string `json:"input"`

	// StartLine and Limit select the window of Input that was loaded.
	StartLine int `json:"startLine"`
	Limit     int `json:"limit"`

	StartTime  time.Time `json:"startTime"`
	LastUpdate time.Time `json:"lastUpdate"`

	TotalTargets     int `json:"totalTargets"`
	CompletedTargets int `json:"completedTargets"`

	// LastIndex is the highest completed worklist index, -1 before the first.
	LastIndex int `json:"lastIndex"`
}

// Matches reports whether s was recorded for the same worklist window.
func (s *State) Matches(input string, startLine, limit, total int) bool {
	return s.Input == input && s.StartLine == startLine && s.Limit == limit && s.TotalTargets == total
}

// Manager handles checkpoint operations.
type Manager struct {
	// FilePath is the path to the checkpoint file
	FilePath string

	// SaveInterval saves the file every SaveInterval completed targets.
	// Values below 1 save after every target.
	SaveInterval int

	state *State
	now   func() time.Time
	mu    sync.Mutex
}

// NewManager creates a new checkpoint manager.
func NewManager(filePath string) *Manager {
	if filePath == "" {
		filePath = defaults.CheckpointFile
	}
	return &Manager{
		FilePath:     filePath,
		SaveInterval: 1,
		now:          time.Now,
	}
}

// Init starts a fresh state for a worklist of total targets.
func (m *Manager) Init(input string, startLine, limit, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.state = &State{
		Version:      FormatVersion,
		Input:        input,
		StartLine:    startLine,
		Limit:        limit,
		StartTime:    now,
		LastUpdate:   now,
		TotalTargets: total,
		LastIndex:    -1,
	}
}

// Load reads the checkpoint file and adopts its state.
func (m *Manager) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.FilePath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	var state State
	if err := jsonutil.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", m.FilePath, err)
	}

	m.state = &state
	cp := state
	return &cp, nil
}

// Resume loads the checkpoint file and returns the first index still to
// scan. A missing file resumes at 0 with a fresh state.
func (m *Manager) Resume(input string, startLine, limit, total int) (int, error) {
	state, err := m.Load()
	if errors.Is(err, os.ErrNotExist) {
		m.Init(input, startLine, limit, total)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !state.Matches(input, startLine, limit, total) {
		return 0, fmt.Errorf("%w: %s recorded %s (line %d, limit %d, %d targets)",
			ErrMismatch, m.FilePath, state.Input, state.StartLine, state.Limit, state.TotalTargets)
	}
	return state.LastIndex + 1, nil
}

// Save writes the current state atomically via a temp file and rename.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if m.state == nil {
		return ErrNoState
	}

	m.state.LastUpdate = m.now()

	data, err := jsonutil.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.FilePath), filepath.Base(m.FilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.FilePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// MarkCompleted records index as done and saves on the configured interval.
func (m *Manager) MarkCompleted(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return ErrNoState
	}
	m.state.CompletedTargets++
	if index > m.state.LastIndex {
		m.state.LastIndex = index
	}

	if m.SaveInterval <= 1 || m.state.CompletedTargets%m.SaveInterval == 0 {
		return m.saveLocked()
	}
	return nil
}

// State returns a copy of the current state, or nil before Init or Load.
func (m *Manager) State() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	cp := *m.state
	return &cp
}

// Progress returns completion as a percentage of the total.
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil || m.state.TotalTargets == 0 {
		return 0
	}
	return float64(m.state.CompletedTargets) / float64(m.state.TotalTargets) * 100
}
