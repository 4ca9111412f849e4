// Package archive asks the Wayback Machine to preserve pages that probed
// for several extensions, so the probing code can be studied after the
// site changes.
//
// Requests go out from a single background worker paced by a token bucket;
// Submit never blocks the scan.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/httpclient"
	"github.com/warscan/warscan/pkg/retry"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("archive: closed")

// Config controls archiving.
type Config struct {
	// Endpoint is the Wayback Machine base URL.
	Endpoint string

	// UserAgent identifies the requests.
	UserAgent string

	// Threshold archives a page once it has more probe requests than this.
	Threshold int

	// PerMinute paces save requests.
	PerMinute float64

	// QueueSize bounds pending pages. Pages beyond it are dropped.
	QueueSize int

	// Retry paces repeated tries of a save that failed temporarily.
	Retry retry.Config

	Client *http.Client
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaults.ArchiveEndpoint
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.ArchiveUserAgent
	}
	if c.Threshold <= 0 {
		c.Threshold = defaults.ArchiveThreshold
	}
	if c.PerMinute <= 0 {
		c.PerMinute = defaults.ArchivePerMinute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.Backoff(defaults.HTTPAttempts, duration.RetryInitial, duration.RetryMax)
	}
	if c.Client == nil {
		c.Client = httpclient.New(httpclient.External(duration.HTTPArchive, c.UserAgent))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Archiver submits suspicious pages to the archive.
type Archiver struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	queue  chan string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stats Stats
}

// Stats counts archive outcomes.
type Stats struct {
	Submitted int
	Archived  int
	Failed    int
	Dropped   int
}

// New starts an Archiver. Close it to stop the worker.
func New(cfg Config) *Archiver {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	a := &Archiver{
		cfg:     cfg,
		logger:  cfg.Logger,
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/cfg.PerMinute)), 1),
		queue:   make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Suspicious reports whether r probed enough extensions to be archived.
func (a *Archiver) Suspicious(r *finding.PageResult) bool {
	return r != nil && len(r.WARRequests) > a.cfg.Threshold
}

// Submit queues r's URL for archiving when r is suspicious. It reports
// whether the URL was queued and never blocks.
func (a *Archiver) Submit(r *finding.PageResult) bool {
	if !a.Suspicious(r) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- r.URL:
		a.stats.Submitted++
		return true
	default:
		a.stats.Dropped++
		a.logger.Warn("archive queue full, dropping", "url", r.URL)
		return false
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for url := range a.queue {
		if err := a.limiter.Wait(a.ctx); err != nil {
			a.record(false)
			continue
		}
		link, err := a.Save(a.ctx, url)
		if err != nil {
			a.logger.Error("archive failed", "url", url, "error", err)
			a.record(false)
			continue
		}
		a.logger.Info("archived website", "url", url, "link", link)
		a.record(true)
	}
}

func (a *Archiver) record(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.stats.Archived++
	} else {
		a.stats.Failed++
	}
}

// Stats returns a snapshot of the counters.
func (a *Archiver) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Save requests a snapshot of url and returns the archived copy's link.
// Rate limiting and server errors are retried with backoff; other failures
// end the save at once.
func (a *Archiver) Save(ctx context.Context, url string) (string, error) {
	var link string
	err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		var err error
		link, err = a.save(ctx, url)
		if err != nil && !httpclient.Retryable(err) {
			return retry.Stop(err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return link, nil
}

func (a *Archiver) save(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint+"/save/"+url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	resp, err := a.cfg.Client.Do(req)
	if err != nil {
		return "", err
	}
	if err := httpclient.CheckStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return a.cfg.Endpoint + resp.Header.Get("Content-Location"), nil
}

// Close stops accepting pages and waits for the queue to drain. When ctx
// ends first, the request in flight is abandoned and the rest dropped.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-a.done
		return ctx.Err()
	}
}
