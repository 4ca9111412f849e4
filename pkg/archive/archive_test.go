package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/httpclient"
	"github.com/warscan/warscan/pkg/retry"
)

type recorder struct {
	mu     sync.Mutex
	paths  []string
	agents []string
}

func (r *recorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.paths = append(r.paths, req.URL.Path)
		r.agents = append(r.agents, req.Header.Get("User-Agent"))
		r.mu.Unlock()
		w.Header().Set("Content-Location", "/web/20240101000000"+req.URL.Path[len("/save"):])
		w.WriteHeader(status)
	}
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...), append([]string(nil), r.agents...)
}

func probes(url string, n int) *finding.PageResult {
	r := &finding.PageResult{URL: url}
	for range n {
		r.Add(&finding.ProbeRequest{URL: "chrome-extension://x/y.png", Source: finding.SourceNetwork})
	}
	return r
}

func newTestArchiver(t *testing.T, srv *httptest.Server) *Archiver {
	t.Helper()
	return New(Config{
		Endpoint:  srv.URL,
		PerMinute: 6000,
		Retry:     retry.Backoff(3, time.Millisecond, time.Millisecond),
		Client:    httpclient.New(httpclient.Local()),
	})
}

func TestSuspicious(t *testing.T) {
	a := New(Config{})
	defer a.Close(context.Background())

	assert.False(t, a.Suspicious(nil))
	assert.False(t, a.Suspicious(probes("http://a.test", 2)))
	assert.True(t, a.Suspicious(probes("http://a.test", 3)))
}

func TestSave(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	defer a.Close(context.Background())

	link, err := a.Save(context.Background(), "http://a.test")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/web/20240101000000/http://a.test", link)

	paths, agents := rec.snapshot()
	assert.Equal(t, []string{"/save/http://a.test"}, paths)
	assert.Equal(t, []string{"extension-scanner"}, agents)
}

func TestSave_BadStatus(t *testing.T) {
	srv := httptest.NewServer((&recorder{}).handler(http.StatusTooManyRequests))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	defer a.Close(context.Background())

	_, err := a.Save(context.Background(), "http://a.test")
	require.ErrorIs(t, err, httpclient.ErrStatus)
	assert.ErrorIs(t, err, retry.ErrExhausted)

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}

func TestSave_RetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Location", "/web/1/http://a.test")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	defer a.Close(context.Background())

	link, err := a.Save(context.Background(), "http://a.test")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/web/1/http://a.test", link)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSave_PermanentStatusIsNotRetried(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusNotFound))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	defer a.Close(context.Background())

	_, err := a.Save(context.Background(), "http://a.test")
	require.ErrorIs(t, err, httpclient.ErrStatus)
	assert.NotErrorIs(t, err, retry.ErrExhausted)

	paths, _ := rec.snapshot()
	assert.Len(t, paths, 1)
}

func TestSubmit_OnlySuspiciousPages(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	assert.False(t, a.Submit(probes("http://quiet.test", 2)))
	assert.True(t, a.Submit(probes("http://loud.test", 5)))
	require.NoError(t, a.Close(context.Background()))

	paths, _ := rec.snapshot()
	assert.Equal(t, []string{"/save/http://loud.test"}, paths)
	assert.Equal(t, Stats{Submitted: 1, Archived: 1}, a.Stats())
}

func TestSubmit_FailuresAreCounted(t *testing.T) {
	srv := httptest.NewServer((&recorder{}).handler(http.StatusInternalServerError))
	defer srv.Close()

	a := newTestArchiver(t, srv)
	a.Submit(probes("http://a.test", 3))
	a.Submit(probes("http://b.test", 3))
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, Stats{Submitted: 2, Failed: 2}, a.Stats())
}

func TestClose_AbandonsSlowRequests(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a := newTestArchiver(t, srv)
	a.Submit(probes("http://a.test", 3))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Close(ctx), context.DeadlineExceeded)

	assert.False(t, a.Submit(probes("http://late.test", 3)))
	assert.ErrorIs(t, a.Close(context.Background()), ErrClosed)
}
