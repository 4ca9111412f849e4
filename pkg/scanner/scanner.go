// Package scanner drives one page visit: open a tab, instrument it,
// navigate, let the page settle, scroll like a reader and collect what the
// page tried to do with extensions.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/warscan/warscan/pkg/browser"
	"github.com/warscan/warscan/pkg/collector"
	"github.com/warscan/warscan/pkg/deadline"
	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/finding"
)

// Tab is the part of a browser tab a visit needs.
type Tab interface {
	Prepare(ctx context.Context, script, acceptLanguage string) error
	Navigate(ctx context.Context, url string) error
	LayoutMetrics(ctx context.Context) (browser.Metrics, error)
	Wheel(ctx context.Context, x, y, deltaY float64) error
	Close() error
}

// Browser opens tabs. listener receives every protocol event of the tab.
type Browser interface {
	OpenTab(ctx context.Context, listener func(ev any)) (Tab, error)
}

// FromSession adapts a browser session to Browser.
func FromSession(s *browser.Session) Browser {
	return sessionBrowser{s: s}
}

type sessionBrowser struct {
	s *browser.Session
}

func (b sessionBrowser) OpenTab(ctx context.Context, listener func(ev any)) (Tab, error) {
	t, err := b.s.OpenTab(ctx, listener)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Config controls a page visit.
type Config struct {
	// NavigationTimeout bounds the navigate call (default: 30s).
	NavigationTimeout time.Duration

	// PostLoadWait is the settle time after navigation (default: 5s).
	PostLoadWait time.Duration

	// Deadline is the hard ceiling on navigation, settle and scrolling
	// together (default: 40s).
	Deadline time.Duration

	// AcceptLanguage is pinned on every request.
	AcceptLanguage string

	// Script is installed on every new document (default: collector.Script).
	Script string

	Scroll ScrollConfig

	Logger *slog.Logger

	// Rand drives the scroll simulation. Tests inject a seeded source.
	Rand *rand.Rand

	// Now stamps results (default: time.Now).
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = duration.Navigation
	}
	if c.PostLoadWait < 0 {
		c.PostLoadWait = 0
	}
	if c.Deadline <= 0 {
		c.Deadline = duration.PageDeadline
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = defaults.AcceptLanguage
	}
	if c.Script == "" {
		c.Script = collector.Script
	}
	c.Scroll = c.Scroll.withDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Scanner visits pages one at a time.
type Scanner struct {
	cfg    Config
	logger *slog.Logger

	// rngMu guards cfg.Rand; an abandoned visit may still be scrolling
	// when the next one starts.
	rngMu sync.Mutex
}

// New returns a Scanner for cfg.
func New(cfg Config) *Scanner {
	cfg = cfg.withDefaults()
	return &Scanner{cfg: cfg, logger: cfg.Logger}
}

// Scan visits url in a fresh tab of b.
//
// The result is non-nil unless the error is ErrTransport or ctx's error.
// ErrNavigationTimeout and ErrDeadlineExceeded come with the findings
// collected so far. Cancelling ctx discards the partial result.
func (s *Scanner) Scan(ctx context.Context, b Browser, url string) (*finding.PageResult, error) {
	logger := s.logger.With("url", url)
	col := collector.New(logger)

	tab, err := b.OpenTab(ctx, col.HandleEvent)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open tab: %w", ErrTransport, err)
	}
	defer func() {
		if err := tab.Close(); err != nil {
			logger.Warn("close tab", "error", err)
		}
	}()

	prepCtx, cancel := context.WithTimeout(ctx, duration.TabOpen)
	err = tab.Prepare(prepCtx, s.cfg.Script, s.cfg.AcceptLanguage)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: prepare tab: %w", ErrTransport, err)
	}

	visitErr := deadline.Run(ctx, s.cfg.Deadline, func(ctx context.Context) error {
		return s.visit(ctx, tab, url, logger)
	})

	// Late events from an abandoned visit must not change the result.
	col.Close()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result := col.Result(url, s.cfg.Now())
	if script, malformed := col.Errors(); script+malformed > 0 {
		logger.Debug("instrumentation problems", "script_errors", script, "malformed", malformed)
	}

	switch {
	case visitErr == nil:
		return result, nil
	case errors.Is(visitErr, deadline.ErrExpired):
		logger.Error("page deadline exceeded, keeping findings collected so far",
			"deadline", s.cfg.Deadline, "findings", result.Total())
		return result, fmt.Errorf("%w: %w", ErrDeadlineExceeded, visitErr)
	case errors.Is(visitErr, ErrNavigationTimeout):
		logger.Warn("navigation timed out", "timeout", s.cfg.NavigationTimeout)
		return result, visitErr
	}
	return nil, visitErr
}

// visit navigates, settles and scrolls. It runs under the hard deadline.
func (s *Scanner) visit(ctx context.Context, tab Tab, url string, logger *slog.Logger) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	err := tab.Navigate(navCtx, url)
	cancel()

	var navErr *browser.NavigationError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &navErr):
		// The error page still runs the instrumentation; keep going.
		logger.Info("navigation failed", "reason", navErr.Text)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrNavigationTimeout, s.cfg.NavigationTimeout)
	default:
		return fmt.Errorf("%w: navigate: %w", ErrTransport, err)
	}

	if err := sleep(ctx, s.cfg.PostLoadWait); err != nil {
		return err
	}

	if err := s.scroll(ctx, tab, logger); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: scroll: %w", ErrTransport, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
