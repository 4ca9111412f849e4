// Package health reports scanner liveness to a healthchecks.io style
// service.
//
// New registers (or re-finds, the check is unique by name) a check and
// remembers its ping URL. The scanner then pings <ping_url>/start when a
// run begins, <ping_url> as a heartbeat and <ping_url>/fail when errors
// pile up. Delivery is best effort: a ping still failing after its retries
// is logged and forgotten.
package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/httpclient"
	"github.com/warscan/warscan/pkg/jsonutil"
	"github.com/warscan/warscan/pkg/retry"
)

var (
	// ErrCreate is returned when the service refuses to create the check.
	ErrCreate = errors.New("health: cannot create check")

	// ErrNoPingURL is returned when the create response has no ping_url.
	ErrNoPingURL = errors.New("health: response has no ping_url")
)

// Signal is a ping kind, expressed as the suffix of the ping URL.
type Signal string

const (
	SignalStart Signal = "/start"
	SignalAlive Signal = ""
	SignalFail  Signal = "/fail"
)

func (s Signal) String() string {
	switch s {
	case SignalStart:
		return "start"
	case SignalAlive:
		return "alive"
	case SignalFail:
		return "fail"
	}
	return string(s)
}

// Config describes the check to create.
type Config struct {
	// APIURL is the check-creation endpoint. Empty disables the checker.
	APIURL string
	APIKey string
	Name   string

	Tags    string
	Timeout int
	Grace   int

	// Retry paces repeated tries of a request that failed temporarily.
	Retry retry.Config

	Client *http.Client
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaults.ToolName
	}
	if c.Tags == "" {
		c.Tags = defaults.HealthTags
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.HealthTimeout
	}
	if c.Grace <= 0 {
		c.Grace = defaults.HealthGrace
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.Backoff(defaults.HTTPAttempts, duration.RetryInitial, duration.RetryMax)
	}
	if c.Client == nil {
		c.Client = httpclient.New(httpclient.External(duration.HTTPProbing, defaults.UserAgent("health")))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type createRequest struct {
	APIKey   string   `json:"api_key"`
	Name     string   `json:"name"`
	Tags     string   `json:"tags"`
	Timeout  int      `json:"timeout"`
	Grace    int      `json:"grace"`
	Channels string   `json:"channels"`
	Unique   []string `json:"unique"`
}

type createResponse struct {
	PingURL string `json:"ping_url"`
}

// Checker sends liveness signals. The zero value and a nil *Checker are
// disabled and drop every signal.
type Checker struct {
	cfg     Config
	pingURL string
	logger  *slog.Logger
}

// Disabled returns a checker that sends nothing.
func Disabled() *Checker { return &Checker{} }

// New creates the check and returns a Checker pinging it. With an empty
// APIURL it returns a disabled Checker and no error.
func New(ctx context.Context, cfg Config) (*Checker, error) {
	if cfg.APIURL == "" {
		return Disabled(), nil
	}
	cfg = cfg.withDefaults()

	body, err := jsonutil.Marshal(createRequest{
		APIKey:   cfg.APIKey,
		Name:     cfg.Name,
		Tags:     cfg.Tags,
		Timeout:  cfg.Timeout,
		Grace:    cfg.Grace,
		Channels: "*",
		Unique:   []string{"name"},
	})
	if err != nil {
		return nil, err
	}
	var out createResponse
	err = retry.Do(ctx, cfg.Retry, func(ctx context.Context) error {
		return post(ctx, cfg.Client, cfg.APIURL, body, &out, http.StatusOK, http.StatusCreated)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if out.PingURL == "" {
		return nil, ErrNoPingURL
	}
	cfg.Logger.Info("health check registered", "name", cfg.Name, "ping_url", out.PingURL)
	return &Checker{cfg: cfg, pingURL: out.PingURL, logger: cfg.Logger}, nil
}

// Enabled reports whether signals are delivered anywhere.
func (c *Checker) Enabled() bool {
	return c != nil && c.pingURL != ""
}

// Start signals that a run began.
func (c *Checker) Start(ctx context.Context, data any) { c.deliver(ctx, SignalStart, data) }

// Alive signals progress.
func (c *Checker) Alive(ctx context.Context, data any) { c.deliver(ctx, SignalAlive, data) }

// Fail signals sustained errors.
func (c *Checker) Fail(ctx context.Context, data any) { c.deliver(ctx, SignalFail, data) }

func (c *Checker) deliver(ctx context.Context, sig Signal, data any) {
	if err := c.Send(ctx, sig, data); err != nil {
		c.logger.Warn("health signal not delivered", "signal", sig.String(), "error", err)
	}
}

// Send posts data as JSON to the ping URL for sig. It is a no-op on a
// disabled Checker.
func (c *Checker) Send(ctx context.Context, sig Signal, data any) error {
	if !c.Enabled() {
		return nil
	}
	body, err := jsonutil.Marshal(data)
	if err != nil {
		return fmt.Errorf("health: encode %s data: %w", sig, err)
	}
	err = retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		return post(ctx, c.cfg.Client, c.pingURL+string(sig), body, nil, http.StatusOK)
	})
	if err != nil {
		return fmt.Errorf("health: %s: %w", sig, err)
	}
	return nil
}

// post sends one JSON request and decodes the response into out when out
// is non-nil. Errors that a retry cannot fix are wrapped with retry.Stop.
func post(ctx context.Context, client *http.Client, url string, body []byte, out any, accepted ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Stop(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err == nil {
		err = httpclient.CheckStatus(resp, accepted...)
	}
	if err != nil {
		if httpclient.Retryable(err) {
			return err
		}
		return retry.Stop(err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := jsonutil.UnmarshalRead(resp.Body, out); err != nil {
		return retry.Stop(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
