package browser

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/httpclient"
	"github.com/warscan/warscan/pkg/jsonutil"
	"github.com/warscan/warscan/pkg/retry"
)

// VersionInfo is the body of the /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version,omitempty"`
	WebKitVersion        string `json:"WebKit-Version,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// awaitReady polls the debugging port until it accepts connections, then
// polls the version endpoint until it answers. Each poll has its own budget.
func (s *Supervisor) awaitReady(ctx context.Context, inst *Instance) error {
	dialer := &net.Dialer{Timeout: duration.ReadinessDial}
	err := retry.Do(ctx, retry.Poll(s.cfg.ConnectAttempts, s.cfg.PollInterval), func(ctx context.Context) error {
		if inst.Exited() {
			return retry.Stop(ErrExited)
		}
		conn, err := dialer.DialContext(ctx, "tcp", inst.addr())
		if err != nil {
			return err
		}
		return conn.Close()
	})
	if err != nil {
		return &StartupError{Phase: PhaseConnect, Err: err}
	}

	client := httpclient.New(httpclient.Local())
	defer client.CloseIdleConnections()
	err = retry.Do(ctx, retry.Poll(s.cfg.HandshakeAttempts, s.cfg.PollInterval), func(ctx context.Context) error {
		if inst.Exited() {
			return retry.Stop(ErrExited)
		}
		v, err := FetchVersion(ctx, client, inst.Endpoint())
		if err != nil {
			return err
		}
		if v.WebSocketDebuggerURL == "" {
			return ErrNoEndpoint
		}
		inst.Version = v
		inst.WebSocketURL = v.WebSocketDebuggerURL
		return nil
	})
	if err != nil {
		return &StartupError{Phase: PhaseHandshake, Err: err}
	}
	return nil
}

// FetchVersion queries endpoint/json/version.
func FetchVersion(ctx context.Context, client *http.Client, endpoint string) (VersionInfo, error) {
	var v VersionInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/json/version", nil)
	if err != nil {
		return v, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return v, err
	}
	if err := httpclient.CheckStatus(resp, http.StatusOK); err != nil {
		return v, err
	}
	defer resp.Body.Close()
	if err := jsonutil.UnmarshalRead(resp.Body, &v); err != nil {
		return v, fmt.Errorf("decode version: %w", err)
	}
	return v, nil
}
