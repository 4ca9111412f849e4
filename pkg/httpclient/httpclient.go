// Package httpclient builds the HTTP clients warscan talks to its
// collaborators with: the browser's debugging endpoint, the health-check
// service and the Wayback Machine.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout (default: 5s)
	Timeout time.Duration

	// UserAgent is set on requests that carry none (default: warscan/<version>)
	UserAgent string

	// FollowRedirects follows 3xx responses when true
	FollowRedirects bool

	// MaxIdleConns is the maximum number of idle connections (default: 10)
	MaxIdleConns int

	// DialTimeout is the timeout for establishing connections (default: 5s)
	DialTimeout time.Duration

	// Proxy honours HTTP_PROXY and friends when true. The debugging endpoint
	// is always local and never proxied.
	Proxy bool
}

// Local returns the config for the browser's debugging endpoint.
func Local() Config {
	return Config{
		Timeout:     duration.HTTPProbing,
		DialTimeout: duration.ReadinessDial,
	}
}

// External returns the config for a remote collaborator.
func External(timeout time.Duration, userAgent string) Config {
	return Config{
		Timeout:         timeout,
		UserAgent:       userAgent,
		FollowRedirects: true,
		Proxy:           true,
	}
}

// New creates an HTTP client with the given configuration.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.HTTPProbing
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent("")
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = duration.HTTPProbing
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.DialTimeout,
		DialContext:           dialer.DialContext,
	}
	if cfg.Proxy {
		transport.Proxy = http.ProxyFromEnvironment
	}

	client := &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: cfg.UserAgent},
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// userAgentTransport sets a default User-Agent header.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
