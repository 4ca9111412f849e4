//go:build unix

package browser_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warscan/warscan/pkg/browser"
	"github.com/warscan/warscan/pkg/collector"
	"github.com/warscan/warscan/pkg/finding"
)

const extensionID = "abcdefghijklmnopabcdefghijklmnop"

const extensionPage = `<!doctype html>
<html><body>
<script>
chrome.runtime.connect("` + extensionID + `", {name: "x"});
fetch("chrome-extension://` + extensionID + `/icon.png").catch(function () {});
</script>
<div style="height: 5000px">tall</div>
</body></html>`

// chromium returns a browser executable or skips the test. WARSCAN_CHROMIUM
// takes precedence over PATH.
func chromium(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("launches a real browser")
	}
	if p := os.Getenv("WARSCAN_CHROMIUM"); p != "" {
		return p
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless_shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chromium executable found")
	return ""
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type liveBrowser struct {
	sup     *browser.Supervisor
	inst    *browser.Instance
	session *browser.Session
}

func startBrowser(t *testing.T) *liveBrowser {
	t.Helper()
	exe := chromium(t)

	var extra []string
	if os.Geteuid() == 0 {
		extra = append(extra, "--no-sandbox")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := browser.NewSupervisor(browser.Config{
		Executable: exe,
		Port:       freePort(t),
		LogFile:    filepath.Join(t.TempDir(), "browser.log"),
		ExtraFlags: extra,
		Logger:     logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	inst, err := sup.Start(ctx)
	require.NoError(t, err)

	session, err := browser.Connect(ctx, inst, logger)
	if err != nil {
		_ = sup.Stop(inst)
		require.NoError(t, err)
	}

	lb := &liveBrowser{sup: sup, inst: inst, session: session}
	t.Cleanup(func() {
		_ = lb.session.Close()
		_ = lb.sup.Stop(lb.inst)
	})
	return lb
}

func TestLiveBrowser_RecordsExtensionFindings(t *testing.T) {
	lb := startBrowser(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, extensionPage)
	}))
	defer srv.Close()

	assert.True(t, lb.session.Alive(ctx))
	assert.NotContains(t, lb.session.UserAgent(), "Headless")

	col := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tab, err := lb.session.OpenTab(ctx, col.HandleEvent)
	require.NoError(t, err)
	defer tab.Close()

	require.NoError(t, tab.Prepare(ctx, collector.Script, "en-US,en;q=0.9"))
	require.NoError(t, tab.Navigate(ctx, srv.URL))

	var result *finding.PageResult
	require.Eventually(t, func() bool {
		result = col.Result(srv.URL, time.Now())
		return len(result.Connects) == 1 && len(result.WARRequests) > 0
	}, 15*time.Second, 50*time.Millisecond)

	connect := result.Connects[0]
	assert.Equal(t, extensionID, connect.ExtensionID)
	assert.JSONEq(t, `{"name":"x"}`, string(connect.ConnectInfo))
	for _, p := range result.WARRequests {
		assert.True(t, strings.HasPrefix(p.URL, "chrome-extension://"+extensionID+"/"), p.URL)
	}
	assert.Empty(t, result.PostMessages)
	assert.Empty(t, result.SendMessages)
	assert.Empty(t, result.PortPostMessages)
}

func TestLiveBrowser_LayoutAndWheel(t *testing.T) {
	lb := startBrowser(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, extensionPage)
	}))
	defer srv.Close()

	tab, err := lb.session.OpenTab(ctx, nil)
	require.NoError(t, err)
	defer tab.Close()
	require.NoError(t, tab.Prepare(ctx, collector.Script, ""))
	require.NoError(t, tab.Navigate(ctx, srv.URL))

	var m browser.Metrics
	require.Eventually(t, func() bool {
		m, err = tab.LayoutMetrics(ctx)
		return err == nil && m.ContentHeight >= 5000
	}, 15*time.Second, 50*time.Millisecond)
	assert.Positive(t, m.ViewportHeight)
	assert.Zero(t, m.ScrollY)

	require.NoError(t, tab.Wheel(ctx, m.ViewportWidth/2, m.ViewportHeight/2, 400))
	assert.Eventually(t, func() bool {
		m, err = tab.LayoutMetrics(ctx)
		return err == nil && m.ScrollY > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestLiveBrowser_NavigationError(t *testing.T) {
	lb := startBrowser(t)
	ctx := context.Background()

	tab, err := lb.session.OpenTab(ctx, nil)
	require.NoError(t, err)
	defer tab.Close()
	require.NoError(t, tab.Prepare(ctx, "", ""))

	// Nothing listens on the port of a closed server.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err = tab.Navigate(ctx, url)
	var navErr *browser.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, url, navErr.URL)
	assert.Contains(t, navErr.Text, "net::ERR_")
}

func TestLiveBrowser_DeadAfterStop(t *testing.T) {
	lb := startBrowser(t)
	ctx := context.Background()

	require.True(t, lb.session.Alive(ctx))
	require.NoError(t, lb.sup.Stop(lb.inst))

	assert.Eventually(t, func() bool { return !lb.session.Alive(ctx) }, 5*time.Second, 50*time.Millisecond)

	_ = lb.session.Close()
	_, err := lb.session.OpenTab(ctx, nil)
	assert.ErrorIs(t, err, browser.ErrClosed)
}
