package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/warscan/warscan/pkg/duration"
)

// Tab is one attached page target.
type Tab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	userAgent string
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Metrics is the subset of the page's layout metrics used for scrolling.
// All values are in CSS pixels.
type Metrics struct {
	ContentHeight  float64
	ViewportWidth  float64
	ViewportHeight float64
	ScrollY        float64
}

// Run executes actions against the tab. It returns when they finish or
// when ctx is done, whichever comes first. An expired ctx leaves the tab
// usable.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case t.ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

// Prepare readies the tab for a visit: it enables the event domains, wipes
// cache and cookies, masks the headless user agent, pins Accept-Language
// and installs script on every new document.
func (t *Tab) Prepare(ctx context.Context, script, acceptLanguage string) error {
	steps := []struct {
		name string
		do   func(ctx context.Context) error
	}{
		{"enable runtime", runtime.Enable().Do},
		{"enable network", network.Enable().Do},
		{"enable page", page.Enable().Do},
		{"enable log", cdplog.Enable().Do},
		{"clear cache", network.ClearBrowserCache().Do},
		{"clear cookies", network.ClearBrowserCookies().Do},
		{"override user agent", func(ctx context.Context) error {
			if t.userAgent == "" {
				return nil
			}
			return emulation.SetUserAgentOverride(t.userAgent).WithAcceptLanguage(acceptLanguage).Do(ctx)
		}},
		{"set headers", func(ctx context.Context) error {
			if acceptLanguage == "" {
				return nil
			}
			return network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}).Do(ctx)
		}},
		{"install script", func(ctx context.Context) error {
			if script == "" {
				return nil
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}},
	}

	return t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, s := range steps {
			if err := s.do(ctx); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
		return nil
	}))
}

// Navigate loads url. It returns once the browser has committed the
// navigation; it does not wait for the load event. A navigation the
// browser rejects is reported as *NavigationError.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	return t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return &NavigationError{URL: url, Text: errorText}
		}
		return nil
	}))
}

// LayoutMetrics reads the page size and the visual viewport.
func (t *Tab) LayoutMetrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, visual, content, _, cssVisual, cssContent, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssVisual == nil {
			cssVisual = visual
		}
		if cssContent == nil {
			cssContent = content
		}
		if cssVisual == nil || cssContent == nil {
			return errors.New("browser: layout metrics incomplete")
		}
		m = Metrics{
			ContentHeight:  cssContent.Height,
			ViewportWidth:  cssVisual.ClientWidth,
			ViewportHeight: cssVisual.ClientHeight,
			ScrollY:        cssVisual.PageY,
		}
		return nil
	}))
	return m, err
}

// Wheel dispatches one mouse-wheel event at (x, y) scrolling by deltaY.
func (t *Tab) Wheel(ctx context.Context, x, y, deltaY float64) error {
	return t.Run(ctx, input.DispatchMouseEvent(input.MouseWheel, x, y).
		WithDeltaX(0).
		WithDeltaY(deltaY))
}

// Close closes the target. It is idempotent and never blocks for longer
// than a few seconds, even when the browser has stopped answering.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			// Waits for Target.closeTarget, which has its own 1s limit.
			t.cancel()
			close(done)
		}()
		timer := time.NewTimer(duration.TabClose)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			t.closeErr = fmt.Errorf("browser: tab close timed out after %s", duration.TabClose)
			t.logger.Warn("tab close timed out")
		}
	})
	return t.closeErr
}
