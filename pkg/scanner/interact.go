package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
)

// ScrollConfig shapes the simulated reader.
type ScrollConfig struct {
	// Disabled skips scrolling entirely.
	Disabled bool

	// StepMin and StepMax bound one wheel delta in CSS pixels.
	StepMin int
	StepMax int

	// PauseMin and PauseMax bound the pause after each wheel event.
	PauseMin time.Duration
	PauseMax time.Duration

	// DepthMin and DepthMax bound the scroll target as a share of the
	// content height.
	DepthMin float64
	DepthMax float64

	// MaxSteps caps wheel events per page.
	MaxSteps int

	// ContinueOnStall keeps scrolling when a wheel event did not move the
	// page. By default the first stall ends the simulation, since pages
	// that reset their scroll position would otherwise loop until the
	// deadline.
	ContinueOnStall bool
}

func (c ScrollConfig) withDefaults() ScrollConfig {
	if c.StepMin <= 0 {
		c.StepMin = defaults.ScrollStepMin
	}
	if c.StepMax < c.StepMin {
		c.StepMax = max(defaults.ScrollStepMax, c.StepMin)
	}
	if c.PauseMin <= 0 {
		c.PauseMin = duration.ScrollPauseMin
	}
	if c.PauseMax < c.PauseMin {
		c.PauseMax = max(duration.ScrollPauseMax, c.PauseMin)
	}
	if c.DepthMin <= 0 {
		c.DepthMin = defaults.ScrollDepthMin
	}
	if c.DepthMax < c.DepthMin {
		c.DepthMax = max(defaults.ScrollDepthMax, c.DepthMin)
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaults.ScrollMaxSteps
	}
	return c
}

// scroll wheels down from a random point in the viewport until the bottom
// of the viewport passes a random depth of the page, or the page stops
// moving.
func (s *Scanner) scroll(ctx context.Context, tab Tab, logger *slog.Logger) error {
	cfg := s.cfg.Scroll
	if cfg.Disabled {
		return nil
	}

	m, err := tab.LayoutMetrics(ctx)
	if err != nil {
		return err
	}
	if m.ViewportWidth < 1 || m.ViewportHeight < 1 || m.ContentHeight <= 0 {
		logger.Debug("nothing to scroll", "height", m.ContentHeight)
		return nil
	}

	x := float64(s.intN(int(m.ViewportWidth)))
	y := float64(s.intN(int(m.ViewportHeight)))
	target := m.ContentHeight * s.between(cfg.DepthMin, cfg.DepthMax)

	lastY := m.ScrollY
	for step := 1; step <= cfg.MaxSteps; step++ {
		delta := float64(cfg.StepMin + s.intN(cfg.StepMax-cfg.StepMin+1))
		if err := tab.Wheel(ctx, x, y, delta); err != nil {
			return err
		}

		m, err = tab.LayoutMetrics(ctx)
		if err != nil {
			return err
		}
		if m.ScrollY+m.ViewportHeight >= target {
			logger.Debug("scrolled to target", "steps", step, "y", m.ScrollY, "target", target)
			return nil
		}
		if m.ScrollY <= lastY && !cfg.ContinueOnStall {
			logger.Debug("scroll stalled", "steps", step, "y", m.ScrollY)
			return nil
		}
		lastY = max(lastY, m.ScrollY)

		pause := cfg.PauseMin + time.Duration(s.int64N(int64(cfg.PauseMax-cfg.PauseMin)+1))
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	logger.Debug("scroll step limit reached", "steps", cfg.MaxSteps)
	return nil
}

func (s *Scanner) intN(n int) int {
	if n <= 1 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.cfg.Rand.IntN(n)
}

func (s *Scanner) int64N(n int64) int64 {
	if n <= 1 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.cfg.Rand.Int64N(n)
}

func (s *Scanner) between(lo, hi float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return lo + s.cfg.Rand.Float64()*(hi-lo)
}
