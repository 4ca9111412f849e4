// Package collector turns the protocol events of one tab into findings.
//
// A Collector is attached to a tab with chromedp.ListenTarget and receives
// three feeds: Runtime.consoleAPICalled, Network.requestWillBeSent and
// Log.entryAdded. The classify functions are pure and usable without a
// browser.
package collector

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"

	"github.com/warscan/warscan/pkg/finding"
)

// Collector accumulates the findings of one page visit. Events arrive on the
// protocol reader goroutine, so all methods are safe for concurrent use.
type Collector struct {
	logger *slog.Logger

	mu        sync.Mutex
	findings  finding.PageResult
	malformed int
	scriptErr int
	closed    bool
}

// New returns an empty collector. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// HandleEvent classifies one protocol event. Its signature matches
// chromedp.ListenTarget. Unknown event types are ignored.
func (c *Collector) HandleEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if p := ClassifyRequest(ev); p != nil {
			c.Add(p)
		}
	case *cdplog.EventEntryAdded:
		if p := ClassifyLogEntry(ev.Entry); p != nil {
			c.Add(p)
		}
	case *runtime.EventConsoleAPICalled:
		f, err := ClassifyConsole(ev)
		if err != nil {
			c.reportError(err)
			return
		}
		if f != nil {
			c.Add(f)
		}
	}
}

func (c *Collector) reportError(err error) {
	var se *ScriptError
	c.mu.Lock()
	if errors.As(err, &se) {
		c.scriptErr++
	} else {
		c.malformed++
	}
	c.mu.Unlock()

	if se != nil {
		c.logger.Error("instrumentation script error",
			slog.String("type", "jsError"),
			slog.String("location", se.Location),
			slog.String("errorMessage", se.Message),
		)
		return
	}
	c.logger.Warn("dropping malformed instrumentation event", slog.Any("error", err))
}

// Add appends f. Findings added after Close are dropped.
func (c *Collector) Add(f finding.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.findings.Add(f)
	c.logger.Debug("finding", slog.String("kind", string(f.Kind())))
}

// Errors returns the number of script errors and malformed events seen.
func (c *Collector) Errors() (script, malformed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scriptErr, c.malformed
}

// Close stops accepting findings. Events still in flight from the tab are
// discarded so the result cannot change after it is read.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Result returns a PageResult holding copies of the finding lists,
// truncating scanTime to whole seconds.
func (c *Collector) Result(url string, scanTime time.Time) *finding.PageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &finding.PageResult{
		URL:              url,
		ScanTime:         scanTime.Truncate(time.Second),
		PostMessages:     append([]*finding.CrossContextMessage{}, c.findings.PostMessages...),
		SendMessages:     append([]*finding.ExtensionMessage{}, c.findings.SendMessages...),
		PortPostMessages: append([]*finding.PortMessage{}, c.findings.PortPostMessages...),
		Connects:         append([]*finding.ConnectAttempt{}, c.findings.Connects...),
		WARRequests:      append([]*finding.ProbeRequest{}, c.findings.WARRequests...),
	}
}
