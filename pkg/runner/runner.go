// Package runner walks a worklist with a single browser instance. It
// restarts the browser on a cadence, scans one target at a time and hands
// each result to persistence, archival and the output dispatcher.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/output/events"
	"github.com/warscan/warscan/pkg/output/exitcode"
	"github.com/warscan/warscan/pkg/scanner"
)

// Browser is one running browser instance the runner scans with.
type Browser interface {
	scanner.Browser

	// Alive reports whether the instance still answers.
	Alive(ctx context.Context) bool

	Info() BrowserInfo

	// Close tears the instance down. It must leave no process behind.
	Close() error
}

// BrowserInfo describes a started instance.
type BrowserInfo struct {
	PID      int
	Endpoint string
	Product  string
}

// Launcher starts browser instances.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// PageScanner visits one URL. *scanner.Scanner implements it.
type PageScanner interface {
	Scan(ctx context.Context, b scanner.Browser, url string) (*finding.PageResult, error)
}

// Store persists one page result atomically. The runner closes it when the
// run ends.
type Store interface {
	Save(ctx context.Context, r *finding.PageResult) (int64, error)
	Close() error
}

// Archiver decides whether a result's URL is worth preserving and queues it.
type Archiver interface {
	Submit(r *finding.PageResult) bool
}

// Health receives liveness signals. Delivery is best-effort.
type Health interface {
	Start(ctx context.Context, data any)
	Alive(ctx context.Context, data any)
	Fail(ctx context.Context, data any)
}

// Checkpoint records processed worklist indices.
type Checkpoint interface {
	MarkCompleted(index int) error
}

// Dispatcher receives run events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

// Config wires a Runner. Launcher, Scanner and Store are required.
type Config struct {
	Launcher Launcher
	Scanner  PageScanner
	Store    Store

	Archiver   Archiver
	Health     Health
	Checkpoint Checkpoint
	Output     Dispatcher

	// RestartEvery replaces the browser before every index that is a
	// multiple of it, index 0 included.
	RestartEvery int

	// HeartbeatEvery sends an alive signal before every index that is a
	// multiple of it.
	HeartbeatEvery int

	// ErrorThreshold is the error count above which a failure signal is
	// sent and the count reset.
	ErrorThreshold int

	// StartAttempts bounds browser launches per restart before the run
	// fails.
	StartAttempts int

	// StartIndex skips the worklist up to (not including) this index.
	StartIndex int

	// Reported in the start event.
	ScanID            string
	Host              string
	Input             string
	NavigationTimeout time.Duration
	PageDeadline      time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.RestartEvery <= 0 {
		c.RestartEvery = defaults.RestartEvery
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = defaults.HeartbeatEvery
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = defaults.ErrorAlertThreshold
	}
	if c.StartAttempts <= 0 {
		c.StartAttempts = defaults.StartAttempts
	}
	if c.StartIndex < 0 {
		c.StartIndex = 0
	}
	if c.ScanID == "" {
		c.ScanID = events.NewScanID()
	}
	if c.Health == nil {
		c.Health = noHealth{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type noHealth struct{}

func (noHealth) Start(context.Context, any) {}
func (noHealth) Alive(context.Context, any) {}
func (noHealth) Fail(context.Context, any)  {}

// Restart reasons reported in browser-restart events.
const (
	ReasonInitial  = "initial"
	ReasonCadence  = "cadence"
	ReasonRecovery = "recovery"
)

// Runner executes one scan run. It is not safe for concurrent use.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	browser  Browser
	errCount int
	stats    Stats
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	switch {
	case cfg.Launcher == nil:
		return nil, fmt.Errorf("%w: launcher", ErrMissingCollaborator)
	case cfg.Scanner == nil:
		return nil, fmt.Errorf("%w: scanner", ErrMissingCollaborator)
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingCollaborator)
	}
	cfg = cfg.withDefaults()
	return &Runner{cfg: cfg, logger: cfg.Logger}, nil
}

// ScanID returns the identifier stamped on every event of the run.
func (r *Runner) ScanID() string { return r.cfg.ScanID }

// Run scans targets[StartIndex:] in order. Only a browser that cannot be
// started and cancellation of ctx end the run early. Whatever the outcome,
// the browser is stopped and the store closed before Run returns.
func (r *Runner) Run(ctx context.Context, targets []string) (stats Stats, err error) {
	if len(targets) == 0 {
		if err := r.cfg.Store.Close(); err != nil {
			r.logger.Warn("closing store failed", "error", err)
		}
		return Stats{}, ErrEmptyWorklist
	}

	start := r.cfg.StartIndex
	r.stats = Stats{
		Total:      len(targets),
		StartIndex: start,
		Findings:   make(map[finding.Kind]int),
		StartTime:  r.cfg.Now(),
	}
	r.errCount = 0

	r.emit(ctx, &events.StartEvent{
		BaseEvent:    r.base(events.EventTypeStart),
		Host:         r.cfg.Host,
		Input:        r.cfg.Input,
		TotalTargets: len(targets),
		StartIndex:   start,
		Config: events.RunConfig{
			RestartEvery:      r.cfg.RestartEvery,
			HeartbeatEvery:    r.cfg.HeartbeatEvery,
			ErrorThreshold:    r.cfg.ErrorThreshold,
			NavigationTimeout: r.cfg.NavigationTimeout.Seconds(),
			PageDeadline:      r.cfg.PageDeadline.Seconds(),
			Archive:           r.cfg.Archiver != nil,
		},
	})
	r.cfg.Health.Start(ctx, map[string]any{
		"message": fmt.Sprintf("Started scan on %s at %s", r.cfg.Host,
			r.stats.StartTime.UTC().Format(time.RFC1123)),
		"targets":    len(targets),
		"startIndex": start,
	})

	defer func() {
		err = r.finish(ctx, err)
		stats = r.stats
	}()

	for i := start; i < len(targets); i++ {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		url := targets[i]

		reason := ""
		switch {
		case r.browser == nil && i == start:
			reason = ReasonInitial
		case r.browser == nil:
			reason = ReasonRecovery
		case i%r.cfg.RestartEvery == 0:
			reason = ReasonCadence
		}
		if reason != "" {
			if err := r.restart(ctx, i, reason); err != nil {
				return r.stats, err
			}
		}

		if i%r.cfg.HeartbeatEvery == 0 {
			r.cfg.Health.Alive(ctx, map[string]any{
				"amountOfScannedSites": i,
				"nextURLToScan":        url,
			})
		}

		if err := r.scanOne(ctx, i, url); err != nil {
			return r.stats, err
		}
	}
	return r.stats, nil
}

// restart replaces the current browser. It fails only when every attempt
// failed or ctx is done.
func (r *Runner) restart(ctx context.Context, index int, reason string) error {
	if r.browser != nil {
		r.stopBrowser()
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.StartAttempts; attempt++ {
		b, err := r.cfg.Launcher.Launch(ctx)
		if err == nil {
			r.browser = b
			r.stats.BrowserStarts++
			info := b.Info()
			r.emit(ctx, &events.RestartEvent{
				BaseEvent: r.base(events.EventTypeRestart),
				Index:     index,
				Reason:    reason,
				PID:       info.PID,
				Endpoint:  info.Endpoint,
				Product:   info.Product,
				Attempts:  attempt,
			})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		r.emitError(ctx, index, "", events.ErrorBrowserStart, err, attempt == r.cfg.StartAttempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrBrowserStart, r.cfg.StartAttempts, lastErr)
}

func (r *Runner) stopBrowser() {
	if err := r.browser.Close(); err != nil {
		r.logger.Warn("stopping browser failed", "error", err)
	}
	r.browser = nil
}

// scanOne processes one target. It returns an error only when ctx is done;
// the partial result of an interrupted visit is dropped.
func (r *Runner) scanOne(ctx context.Context, index int, url string) error {
	logger := r.logger.With("index", index, "url", url)
	logger.Info("scanning")

	begin := r.cfg.Now()
	res, err := r.cfg.Scanner.Scan(ctx, r.browser, url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("scan interrupted, discarding page")
		return ctxErr
	}

	page := &events.PageEvent{Index: index, URL: url}
	switch {
	case err == nil:
		page.Outcome = events.OutcomeScanned
		r.stats.Scanned++
	case errors.Is(err, scanner.ErrDeadlineExceeded):
		page.Outcome = events.OutcomeDeadline
		r.stats.Deadline++
		logger.Debug("page deadline reached, keeping partial result", "error", err)
	case errors.Is(err, scanner.ErrNavigationTimeout):
		page.Outcome = events.OutcomeTimeout
		r.stats.Timeouts++
		res = nil
		r.emitError(ctx, index, url, events.ErrorNavigationTimeout, err, false)
	default:
		page.Outcome = events.OutcomeError
		r.stats.Failed++
		res = nil
		r.countError(ctx, index, url, events.ErrorTransport, err)
		r.checkBrowser(ctx, index)
	}

	if res != nil {
		r.handOff(ctx, page, res)
	}

	page.BaseEvent = r.base(events.EventTypePage)
	page.DurationMs = float64(page.Time.Sub(begin)) / float64(time.Millisecond)
	r.stats.Processed++
	r.emit(ctx, page)

	if r.cfg.Checkpoint != nil {
		if err := r.cfg.Checkpoint.MarkCompleted(index); err != nil {
			r.emitError(ctx, index, url, events.ErrorCheckpoint, err, false)
		}
	}
	return nil
}

// handOff persists res and offers it for archival.
func (r *Runner) handOff(ctx context.Context, page *events.PageEvent, res *finding.PageResult) {
	page.Result = res
	page.Findings = res.Counts()
	for kind, n := range page.Findings {
		r.stats.Findings[kind] += n
	}

	if _, err := r.cfg.Store.Save(ctx, res); err != nil {
		r.countError(ctx, page.Index, page.URL, events.ErrorStore, err)
	} else {
		page.Persisted = true
		r.stats.Persisted++
	}

	if r.cfg.Archiver != nil && r.cfg.Archiver.Submit(res) {
		page.Archived = true
		r.stats.Archived++
	}
}

// checkBrowser drops a browser that no longer answers, so the next target
// starts a fresh one.
func (r *Runner) checkBrowser(ctx context.Context, index int) {
	if r.browser.Alive(ctx) {
		return
	}
	r.logger.Warn("browser unresponsive, replacing it", "index", index)
	r.stopBrowser()
}

// countError records a counted error and alerts once the count passes the
// threshold.
func (r *Runner) countError(ctx context.Context, index int, url string, class events.ErrorClass, err error) {
	r.stats.Errors++
	r.errCount++
	r.emitError(ctx, index, url, class, err, false)

	if r.errCount > r.cfg.ErrorThreshold {
		r.cfg.Health.Fail(ctx, map[string]any{
			"message": fmt.Sprintf("Scan is still running but there have been more than %d errors. Last at %s: %v",
				r.cfg.ErrorThreshold, url, err),
		})
		r.stats.Alerts++
		r.errCount = 0
	}
}

// finish stops the browser, closes the store and reports the outcome.
func (r *Runner) finish(ctx context.Context, runErr error) error {
	if r.browser != nil {
		r.stopBrowser()
	}
	if err := r.cfg.Store.Close(); err != nil {
		r.logger.Warn("closing store failed", "error", err)
	}
	r.stats.EndTime = r.cfg.Now()

	// Signals still go out after an interrupt.
	ctx = context.WithoutCancel(ctx)

	code := exitcode.FromError(runErr)
	reason := "worklist exhausted"
	switch {
	case code == exitcode.Interrupted:
		reason = "interrupted"
	case runErr != nil:
		reason = runErr.Error()
	}
	if runErr != nil {
		r.cfg.Health.Fail(ctx, map[string]any{
			"message": "Scan stopped: " + reason,
			"index":   r.stats.StartIndex + r.stats.Processed,
		})
	}

	r.emit(ctx, &events.CompleteEvent{
		BaseEvent:   r.base(events.EventTypeComplete),
		Success:     runErr == nil,
		ExitCode:    int(code),
		ExitReason:  reason,
		Processed:   r.stats.Processed,
		Persisted:   r.stats.Persisted,
		Errors:      r.stats.Errors,
		Restarts:    r.stats.BrowserStarts,
		DurationSec: r.stats.Duration().Seconds(),
	})
	return runErr
}

func (r *Runner) base(t events.EventType) events.BaseEvent {
	return events.BaseEvent{Type: t, Time: r.cfg.Now(), Scan: r.cfg.ScanID}
}

func (r *Runner) emit(ctx context.Context, ev events.Event) {
	if r.cfg.Output == nil {
		return
	}
	if err := r.cfg.Output.Dispatch(ctx, ev); err != nil {
		r.logger.Debug("dispatch failed", "event", ev.EventType(), "error", err)
	}
}

func (r *Runner) emitError(ctx context.Context, index int, url string, class events.ErrorClass, err error, fatal bool) {
	r.logger.Debug("scan error", "index", index, "url", url, "class", class, "error", err)
	r.emit(ctx, &events.ErrorEvent{
		BaseEvent: r.base(events.EventTypeError),
		Index:     index,
		Target:    url,
		Class:     class,
		Message:   err.Error(),
		Fatal:     fatal,
	})
}
