package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/warscan/warscan/pkg/deadline"
	"github.com/warscan/warscan/pkg/duration"
)

// Session is a remote-debugging connection to a running Instance.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger

	// userAgent is the browser's own user agent with the headless marker
	// removed. Every tab reports it instead of the original.
	userAgent string
	product   string

	mu     sync.Mutex
	closed bool
}

// Connect attaches to inst over its WebSocket debugger URL and reads the
// browser version.
func Connect(ctx context.Context, inst *Instance, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if inst == nil || inst.WebSocketURL == "" {
		return nil, ErrNoEndpoint
	}

	// The allocator outlives ctx: the session is closed explicitly.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), inst.WebSocketURL, chromedp.NoModifyURL)
	bctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("cdp error", "message", fmt.Sprintf(format, args...))
		}),
	)
	s := &Session{
		ctx:         bctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger,
	}

	err := deadline.Run(ctx, duration.SessionConnect, func(ctx context.Context) error {
		// Targets dials the browser without opening a tab of its own.
		if _, err := chromedp.Targets(bctx); err != nil {
			return err
		}
		_, product, _, ua, _, err := cdpbrowser.GetVersion().Do(s.browserExecutor(ctx))
		if err != nil {
			return err
		}
		s.product = product
		s.userAgent = StripHeadless(ua)
		return nil
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: connect %s: %w", inst.WebSocketURL, err)
	}
	logger.Debug("session attached", "product", s.product, "user_agent", s.userAgent)
	return s, nil
}

// StripHeadless removes the headless marker from a user agent, so that
// "HeadlessChrome/120.0" reads "Chrome/120.0".
func StripHeadless(ua string) string {
	return strings.ReplaceAll(ua, "Headless", "")
}

// UserAgent returns the user agent every tab reports.
func (s *Session) UserAgent() string { return s.userAgent }

// Product returns the browser product string, e.g. "Chrome/120.0.6099.109".
func (s *Session) Product() string { return s.product }

func (s *Session) browserExecutor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(s.ctx).Browser)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.ctx.Err() != nil
}

// Alive reports whether the browser still answers protocol commands.
func (s *Session) Alive(ctx context.Context) bool {
	if s.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, duration.LivenessProbe)
	defer cancel()
	_, _, _, _, _, err := cdpbrowser.GetVersion().Do(s.browserExecutor(ctx))
	return err == nil
}

// OpenTab creates a blank tab and attaches to it. listener, when non-nil,
// receives every event the tab emits from the moment it is attached.
func (s *Session) OpenTab(ctx context.Context, listener func(ev any)) (*Tab, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	tctx, cancel := chromedp.NewContext(s.ctx)
	if listener != nil {
		chromedp.ListenTarget(tctx, listener)
	}
	t := &Tab{
		ctx:       tctx,
		cancel:    cancel,
		userAgent: s.userAgent,
		logger:    s.logger,
	}

	// The first Run creates the target and binds its event loop to tctx, so
	// it cannot run under a derived context.
	err := deadline.Run(ctx, duration.TabOpen, func(context.Context) error {
		return chromedp.Run(tctx)
	})
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}
	return t, nil
}

// Close detaches from the browser. The browser process keeps running;
// stopping it is the Supervisor's job.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.cancel()
		s.allocCancel()
		close(done)
	}()

	t := time.NewTimer(duration.BrowserClose)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return fmt.Errorf("browser: session close timed out after %s", duration.BrowserClose)
	}
}
