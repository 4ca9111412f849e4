package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/output/events"
	"github.com/warscan/warscan/pkg/scanner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBrowser struct {
	id     int
	alive  bool
	closed int
}

func (b *fakeBrowser) OpenTab(context.Context, func(any)) (scanner.Tab, error) {
	return nil, errors.New("not used")
}

func (b *fakeBrowser) Alive(context.Context) bool { return b.alive && b.closed == 0 }

func (b *fakeBrowser) Info() BrowserInfo {
	return BrowserInfo{PID: 1000 + b.id, Endpoint: "127.0.0.1:9222", Product: "Chrome/120"}
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return nil
}

type fakeLauncher struct {
	browsers []*fakeBrowser
	// failures makes the first n launches fail.
	failures int
	calls    int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.calls++
	if l.calls <= l.failures {
		return nil, fmt.Errorf("launch %d: connection refused", l.calls)
	}
	b := &fakeBrowser{id: len(l.browsers) + 1, alive: true}
	l.browsers = append(l.browsers, b)
	return b, nil
}

type scanCall struct {
	url     string
	browser int
}

type fakeScanner struct {
	calls []scanCall
	fn    func(ctx context.Context, i int, url string) (*finding.PageResult, error)
}

func (s *fakeScanner) Scan(ctx context.Context, b scanner.Browser, url string) (*finding.PageResult, error) {
	fb := b.(*fakeBrowser)
	s.calls = append(s.calls, scanCall{url: url, browser: fb.id})
	if s.fn != nil {
		return s.fn(ctx, len(s.calls)-1, url)
	}
	return pageResult(url, 0), nil
}

func pageResult(url string, probes int) *finding.PageResult {
	r := &finding.PageResult{URL: url}
	for i := range probes {
		r.Add(&finding.ProbeRequest{URL: fmt.Sprintf("chrome-extension://abc/%d.png", i), Source: finding.SourceNetwork})
	}
	return r
}

type fakeStore struct {
	saved  []string
	err    error
	closed int
}

func (s *fakeStore) Save(_ context.Context, r *finding.PageResult) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, r.URL)
	return int64(len(s.saved)), nil
}

func (s *fakeStore) Close() error {
	s.closed++
	return nil
}

type signal struct {
	kind string
	data map[string]any
}

type fakeHealth struct {
	signals []signal
}

func (h *fakeHealth) record(kind string, data any) {
	m, _ := data.(map[string]any)
	h.signals = append(h.signals, signal{kind: kind, data: m})
}

func (h *fakeHealth) Start(_ context.Context, data any) { h.record("start", data) }
func (h *fakeHealth) Alive(_ context.Context, data any) { h.record("alive", data) }
func (h *fakeHealth) Fail(_ context.Context, data any)  { h.record("fail", data) }

func (h *fakeHealth) of(kind string) []signal {
	var out []signal
	for _, s := range h.signals {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fakeArchiver struct{ submitted []string }

func (a *fakeArchiver) Submit(r *finding.PageResult) bool {
	if len(r.WARRequests) <= 2 {
		return false
	}
	a.submitted = append(a.submitted, r.URL)
	return true
}

type fakeCheckpoint struct{ completed []int }

func (c *fakeCheckpoint) MarkCompleted(i int) error {
	c.completed = append(c.completed, i)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Dispatch(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) pages() []*events.PageEvent {
	var out []*events.PageEvent
	for _, ev := range l.events {
		if p, ok := ev.(*events.PageEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

func (l *eventLog) restarts() []*events.RestartEvent {
	var out []*events.RestartEvent
	for _, ev := range l.events {
		if r, ok := ev.(*events.RestartEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

func (l *eventLog) complete() *events.CompleteEvent {
	for _, ev := range l.events {
		if c, ok := ev.(*events.CompleteEvent); ok {
			return c
		}
	}
	return nil
}

type harness struct {
	launcher *fakeLauncher
	scanner  *fakeScanner
	store    *fakeStore
	health   *fakeHealth
	archiver *fakeArchiver
	ckpt     *fakeCheckpoint
	events   *eventLog
}

func newHarness() *harness {
	return &harness{
		launcher: &fakeLauncher{},
		scanner:  &fakeScanner{},
		store:    &fakeStore{},
		health:   &fakeHealth{},
		archiver: &fakeArchiver{},
		ckpt:     &fakeCheckpoint{},
		events:   &eventLog{},
	}
}

func (h *harness) config() Config {
	return Config{
		Launcher:   h.launcher,
		Scanner:    h.scanner,
		Store:      h.store,
		Archiver:   h.archiver,
		Health:     h.health,
		Checkpoint: h.ckpt,
		Output:     h.events,
		Host:       "scanner-01",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (h *harness) run(t *testing.T, ctx context.Context, cfg Config, targets []string) (Stats, error) {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	return r.Run(ctx, targets)
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://site%d.example", i)
	}
	return out
}

func TestRun_RestartCadence(t *testing.T) {
	tests := []struct {
		name      string
		targets   int
		wantStart int
	}{
		{"single start below cadence", 1000, 1},
		{"restart at index 1000", 1001, 2},
		{"three instances", 2500, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			stats, err := h.run(t, context.Background(), h.config(), urls(tt.targets))
			require.NoError(t, err)

			assert.Len(t, h.launcher.browsers, tt.wantStart)
			assert.Equal(t, tt.wantStart, stats.BrowserStarts)
			for i, call := range h.scanner.calls {
				assert.Equal(t, i/1000+1, call.browser, "index %d", i)
			}
			for _, b := range h.launcher.browsers {
				assert.Equal(t, 1, b.closed, "browser %d stopped exactly once", b.id)
			}

			restarts := h.events.restarts()
			require.Len(t, restarts, tt.wantStart)
			assert.Equal(t, ReasonInitial, restarts[0].Reason)
			assert.Equal(t, 0, restarts[0].Index)
			if tt.wantStart > 1 {
				assert.Equal(t, ReasonCadence, restarts[1].Reason)
				assert.Equal(t, 1000, restarts[1].Index)
			}
		})
	}
}

func TestRun_Heartbeat(t *testing.T) {
	h := newHarness()
	targets := urls(60)
	_, err := h.run(t, context.Background(), h.config(), targets)
	require.NoError(t, err)

	alive := h.health.of("alive")
	require.Len(t, alive, 3)
	for n, i := range []int{0, 25, 50} {
		assert.Equal(t, i, alive[n].data["amountOfScannedSites"])
		assert.Equal(t, targets[i], alive[n].data["nextURLToScan"])
	}
	assert.Len(t, h.health.of("start"), 1)
	assert.Empty(t, h.health.of("fail"))
}

func TestRun_PersistsAndArchives(t *testing.T) {
	h := newHarness()
	h.scanner.fn = func(_ context.Context, i int, url string) (*finding.PageResult, error) {
		return pageResult(url, i), nil
	}
	targets := urls(5)
	stats, err := h.run(t, context.Background(), h.config(), targets)
	require.NoError(t, err)

	assert.Equal(t, targets, h.store.saved)
	assert.Equal(t, []string{targets[3], targets[4]}, h.archiver.submitted)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, h.ckpt.completed)
	assert.Equal(t, 1, h.store.closed)

	assert.Equal(t, 5, stats.Scanned)
	assert.Equal(t, 5, stats.Persisted)
	assert.Equal(t, 2, stats.Archived)
	assert.Equal(t, 0+1+2+3+4, stats.Findings[finding.KindProbeRequest])

	pages := h.events.pages()
	require.Len(t, pages, 5)
	assert.True(t, pages[4].Persisted)
	assert.True(t, pages[4].Archived)
	assert.Equal(t, 4, pages[4].Findings[finding.KindProbeRequest])

	complete := h.events.complete()
	require.NotNil(t, complete)
	assert.True(t, complete.Success)
	assert.Equal(t, 0, complete.ExitCode)
	assert.Equal(t, 5, complete.Processed)
}

func TestRun_NavigationTimeoutIsNotPersisted(t *testing.T) {
	h := newHarness()
	h.scanner.fn = func(_ context.Context, i int, url string) (*finding.PageResult, error) {
		if i == 1 {
			return pageResult(url, 5), fmt.Errorf("%w: %s", scanner.ErrNavigationTimeout, url)
		}
		return pageResult(url, 0), nil
	}
	targets := urls(3)
	stats, err := h.run(t, context.Background(), h.config(), targets)
	require.NoError(t, err)

	assert.Equal(t, []string{targets[0], targets[2]}, h.store.saved)
	assert.Empty(t, h.archiver.submitted)
	assert.Equal(t, 1, stats.Timeouts)
	assert.Zero(t, stats.Errors, "timeouts are not counted")
	assert.Equal(t, []int{0, 1, 2}, h.ckpt.completed)

	page := h.events.pages()[1]
	assert.Equal(t, events.OutcomeTimeout, page.Outcome)
	assert.False(t, page.Persisted)
	assert.Nil(t, page.Result)
}

func TestRun_DeadlineKeepsPartialResult(t *testing.T) {
	h := newHarness()
	h.scanner.fn = func(_ context.Context, _ int, url string) (*finding.PageResult, error) {
		return pageResult(url, 1), fmt.Errorf("%w: 40s", scanner.ErrDeadlineExceeded)
	}
	stats, err := h.run(t, context.Background(), h.config(), urls(2))
	require.NoError(t, err)

	assert.Len(t, h.store.saved, 2)
	assert.Equal(t, 2, stats.Deadline)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, events.OutcomeDeadline, h.events.pages()[0].Outcome)
}

func TestRun_ErrorThresholdAlertsAndResets(t *testing.T) {
	h := newHarness()
	h.store.err = errors.New("database is locked")
	cfg := h.config()
	cfg.ErrorThreshold = 5

	stats, err := h.run(t, context.Background(), cfg, urls(13))
	require.NoError(t, err)

	assert.Equal(t, 13, stats.Errors)
	assert.Equal(t, 2, stats.Alerts, "alerts after the 6th and 12th error")
	fails := h.health.of("fail")
	require.Len(t, fails, 2)
	assert.Contains(t, fails[0].data["message"], "more than 5 errors")
	assert.Contains(t, fails[0].data["message"], "database is locked")
	assert.Zero(t, stats.Persisted)
}

func TestRun_TransportErrorReplacesDeadBrowser(t *testing.T) {
	h := newHarness()
	h.scanner.fn = func(_ context.Context, i int, url string) (*finding.PageResult, error) {
		if i == 2 {
			h.launcher.browsers[0].alive = false
			return nil, fmt.Errorf("%w: websocket closed", scanner.ErrTransport)
		}
		return pageResult(url, 0), nil
	}
	targets := urls(5)
	stats, err := h.run(t, context.Background(), h.config(), targets)
	require.NoError(t, err)

	require.Len(t, h.launcher.browsers, 2)
	assert.Equal(t, 1, h.launcher.browsers[0].closed)
	assert.Equal(t, []int{1, 1, 1, 2, 2}, browsersUsed(h.scanner.calls))
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Failed)
	assert.Len(t, h.store.saved, 4)

	restarts := h.events.restarts()
	require.Len(t, restarts, 2)
	assert.Equal(t, ReasonRecovery, restarts[1].Reason)
	assert.Equal(t, 3, restarts[1].Index)
}

func TestRun_TransportErrorKeepsLiveBrowser(t *testing.T) {
	h := newHarness()
	h.scanner.fn = func(_ context.Context, i int, url string) (*finding.PageResult, error) {
		if i == 0 {
			return nil, scanner.ErrTransport
		}
		return pageResult(url, 0), nil
	}
	_, err := h.run(t, context.Background(), h.config(), urls(3))
	require.NoError(t, err)
	assert.Len(t, h.launcher.browsers, 1)
}

func browsersUsed(calls []scanCall) []int {
	out := make([]int, len(calls))
	for i, c := range calls {
		out[i] = c.browser
	}
	return out
}

func TestRun_InterruptStopsBrowserAndDiscardsPage(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scanner.fn = func(_ context.Context, i int, url string) (*finding.PageResult, error) {
		if i == 3 {
			cancel()
			return pageResult(url, 7), nil
		}
		return pageResult(url, 0), nil
	}
	targets := urls(10)
	stats, err := h.run(t, ctx, h.config(), targets)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, targets[:3], h.store.saved)
	assert.Equal(t, []int{0, 1, 2}, h.ckpt.completed)
	assert.Equal(t, 3, stats.Processed)
	require.Len(t, h.launcher.browsers, 1)
	assert.Equal(t, 1, h.launcher.browsers[0].closed)
	assert.Equal(t, 1, h.store.closed)

	complete := h.events.complete()
	require.NotNil(t, complete)
	assert.False(t, complete.Success)
	assert.Equal(t, 130, complete.ExitCode)
	assert.Equal(t, "interrupted", complete.ExitReason)
	assert.Len(t, h.health.of("fail"), 1)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.run(t, ctx, h.config(), urls(3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.launcher.browsers)
	assert.Empty(t, h.scanner.calls)
	assert.Equal(t, 1, h.store.closed)
}

func TestRun_BrowserStartFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.launcher.failures = 100
	cfg := h.config()
	cfg.StartAttempts = 3

	_, err := h.run(t, context.Background(), cfg, urls(3))
	require.ErrorIs(t, err, ErrBrowserStart)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, h.launcher.calls)
	assert.Empty(t, h.scanner.calls)
	assert.Equal(t, 1, h.store.closed)

	var fatal []*events.ErrorEvent
	for _, ev := range h.events.events {
		if e, ok := ev.(*events.ErrorEvent); ok {
			assert.Equal(t, events.ErrorBrowserStart, e.Class)
			if e.Fatal {
				fatal = append(fatal, e)
			}
		}
	}
	assert.Len(t, fatal, 1)
	assert.Equal(t, 1, h.events.complete().ExitCode)
}

func TestRun_BrowserStartRetrySucceeds(t *testing.T) {
	h := newHarness()
	h.launcher.failures = 1

	stats, err := h.run(t, context.Background(), h.config(), urls(2))
	require.NoError(t, err)
	assert.Equal(t, 2, h.launcher.calls)
	assert.Equal(t, 1, stats.BrowserStarts)
	assert.Equal(t, 2, h.events.restarts()[0].Attempts)
}

func TestRun_ResumeFromIndex(t *testing.T) {
	h := newHarness()
	cfg := h.config()
	cfg.StartIndex = 998
	cfg.HeartbeatEvery = 1000

	targets := urls(1003)
	stats, err := h.run(t, context.Background(), cfg, targets)
	require.NoError(t, err)

	require.Len(t, h.scanner.calls, 5)
	assert.Equal(t, targets[998], h.scanner.calls[0].url)
	assert.Equal(t, []int{1, 1, 2, 2, 2}, browsersUsed(h.scanner.calls))
	assert.Equal(t, 5, stats.Processed)
	assert.InDelta(t, 100.0, stats.Progress(), 0.001)

	alive := h.health.of("alive")
	require.Len(t, alive, 1)
	assert.Equal(t, 1000, alive[0].data["amountOfScannedSites"])
}

func TestRun_StartIndexPastEnd(t *testing.T) {
	h := newHarness()
	cfg := h.config()
	cfg.StartIndex = 10

	_, err := h.run(t, context.Background(), cfg, urls(3))
	require.NoError(t, err)
	assert.Empty(t, h.launcher.browsers)
	assert.Equal(t, 1, h.store.closed)
}

func TestRun_EmptyWorklist(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, context.Background(), h.config(), nil)
	assert.ErrorIs(t, err, ErrEmptyWorklist)
	assert.Equal(t, 1, h.store.closed)
	assert.Empty(t, h.launcher.browsers)
}

func TestRun_WithoutOptionalCollaborators(t *testing.T) {
	h := newHarness()
	cfg := Config{Launcher: h.launcher, Scanner: h.scanner, Store: h.store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	stats, err := h.run(t, context.Background(), cfg, urls(2))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Persisted)
}

func TestNew_MissingCollaborators(t *testing.T) {
	h := newHarness()
	for name, cfg := range map[string]Config{
		"launcher": {Scanner: h.scanner, Store: h.store},
		"scanner":  {Launcher: h.launcher, Store: h.store},
		"store":    {Launcher: h.launcher, Scanner: h.scanner},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrMissingCollaborator)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1000, cfg.RestartEvery)
	assert.Equal(t, 25, cfg.HeartbeatEvery)
	assert.Equal(t, 50, cfg.ErrorThreshold)
	assert.Equal(t, 2, cfg.StartAttempts)
	assert.NotEmpty(t, cfg.ScanID)
}
