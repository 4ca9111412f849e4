package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warscan/warscan/pkg/httpclient"
	"github.com/warscan/warscan/pkg/jsonutil"
	"github.com/warscan/warscan/pkg/retry"
)

type fakeService struct {
	mu      sync.Mutex
	created map[string]any
	pings   map[string][]string
	status  int
	srv     *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{pings: map[string][]string{}, status: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/checks/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := jsonutil.UnmarshalRead(r.Body, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.created = body
		status := f.status
		f.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"ping_url":"http://`+r.Host+`/ping/uuid-1","name":"scanner-1"}`)
	})
	ping := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signal := r.PathValue("signal")
		f.mu.Lock()
		f.pings[signal] = append(f.pings[signal], string(body))
		f.mu.Unlock()
	}
	mux.HandleFunc("POST /ping/uuid-1", ping)
	mux.HandleFunc("POST /ping/uuid-1/{signal}", ping)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) apiURL() string { return f.srv.URL + "/api/v1/checks/" }

func (f *fakeService) setStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func TestNew_CreatesCheck(t *testing.T) {
	f := newFakeService(t)

	c, err := New(context.Background(), Config{APIURL: f.apiURL(), APIKey: "secret", Name: "scanner-1"})
	require.NoError(t, err)
	assert.True(t, c.Enabled())
	assert.Equal(t, f.srv.URL+"/ping/uuid-1", c.pingURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "secret", f.created["api_key"])
	assert.Equal(t, "scanner-1", f.created["name"])
	assert.Equal(t, "prod scanserver", f.created["tags"])
	assert.Equal(t, float64(1080), f.created["timeout"])
	assert.Equal(t, float64(900), f.created["grace"])
	assert.Equal(t, "*", f.created["channels"])
	assert.Equal(t, []any{"name"}, f.created["unique"])
}

func TestNew_AcceptsExistingCheck(t *testing.T) {
	f := newFakeService(t)
	f.setStatus(http.StatusOK)

	c, err := New(context.Background(), Config{APIURL: f.apiURL()})
	require.NoError(t, err)
	assert.True(t, c.Enabled())
}

func TestNew_Refused(t *testing.T) {
	f := newFakeService(t)
	f.setStatus(http.StatusForbidden)

	_, err := New(context.Background(), Config{APIURL: f.apiURL()})
	assert.ErrorIs(t, err, ErrCreate)
}

func TestNew_DisabledWithoutURL(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	// Every signal is dropped without touching the network.
	c.Start(context.Background(), map[string]any{"x": 1})
	assert.NoError(t, c.Send(context.Background(), SignalFail, nil))

	var nilChecker *Checker
	assert.False(t, nilChecker.Enabled())
	nilChecker.Alive(context.Background(), nil)
}

func TestSignals(t *testing.T) {
	f := newFakeService(t)
	c, err := New(context.Background(), Config{APIURL: f.apiURL()})
	require.NoError(t, err)

	ctx := context.Background()
	c.Start(ctx, map[string]any{"scanId": "run-1"})
	c.Alive(ctx, map[string]any{"amountOfScannedSites": 25, "nextURLToScan": "http://a.test"})
	c.Fail(ctx, map[string]any{"errors": 51})

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{`{"scanId":"run-1"}`}, f.pings["start"])
	assert.Len(t, f.pings[""], 1)
	assert.Contains(t, f.pings[""][0], `"amountOfScannedSites":25`)
	assert.Equal(t, []string{`{"errors":51}`}, f.pings["fail"])
}

func TestSend_ServiceDown(t *testing.T) {
	f := newFakeService(t)
	c, err := New(context.Background(), Config{APIURL: f.apiURL()})
	require.NoError(t, err)
	f.srv.Close()

	assert.Error(t, c.Send(context.Background(), SignalAlive, nil))
	// The public signals swallow the failure.
	c.Alive(context.Background(), nil)
}

func TestSend_RetriesTemporaryFailure(t *testing.T) {
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pings.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := &Checker{
		cfg: Config{
			Client: srv.Client(),
			Retry:  retry.Backoff(3, time.Millisecond, time.Millisecond),
		}.withDefaults(),
		pingURL: srv.URL,
		logger:  slog.Default(),
	}
	require.NoError(t, c.Send(context.Background(), SignalAlive, map[string]any{"x": 1}))
	assert.Equal(t, int32(3), pings.Load())
}

func TestSend_PermanentFailureIsNotRetried(t *testing.T) {
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pings.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Checker{
		cfg: Config{
			Client: srv.Client(),
			Retry:  retry.Backoff(3, time.Millisecond, time.Millisecond),
		}.withDefaults(),
		pingURL: srv.URL,
		logger:  slog.Default(),
	}
	err := c.Send(context.Background(), SignalFail, nil)
	require.ErrorIs(t, err, httpclient.ErrStatus)
	assert.Equal(t, int32(1), pings.Load())
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "start", SignalStart.String())
	assert.Equal(t, "alive", SignalAlive.String())
	assert.Equal(t, "fail", SignalFail.String())
}
