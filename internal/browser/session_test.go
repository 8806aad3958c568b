// internal/browser/session_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webgate/internal/config"
	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

const sessionTestTimeout = 60 * time.Second

// findChrome returns a browser binary, or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser integration test in short mode.")
	}
	if p := os.Getenv("WEBGATE_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("No Chrome binary found; set WEBGATE_CHROME to run browser integration tests.")
	return ""
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Home</title></head><body><a href="/next">next</a></body></html>`)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Next</title></head></html>`)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "s3cret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="staff"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `<html><head><title>Private</title></head></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type syncEvents struct {
	mu     sync.Mutex
	events []webview.Event
}

func (s *syncEvents) observe(ev webview.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *syncEvents) has(kind webview.EventKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Kind() == kind {
			return true
		}
	}
	return false
}

func openTestSession(t *testing.T, target webview.Target, p policy.Config, events *syncEvents) *Session {
	t.Helper()
	chrome := findChrome(t)

	cfg := config.NewDefaultConfig()
	cfg.Browser.ExecPath = chrome
	cfg.Browser.Args = []string{"--user-data-dir=" + t.TempDir()}
	cfg.Policy = config.PolicyConfig{
		AllowedHosts:   p.AllowedHosts,
		ForbiddenHosts: p.ForbiddenHosts,
		MatchMode:      string(policy.MatchSubstring),
		Credential:     p.Credential,
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionTestTimeout)
	t.Cleanup(cancel)

	s, err := Open(ctx, cfg, target, zaptest.NewLogger(t), webview.WithObserver(events.observe))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func waitForTitle(t *testing.T, s *Session, title string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.State()
		return !st.Loading && st.PageTitle == title
	}, 20*time.Second, 50*time.Millisecond, "page title never became %q", title)
}

func TestSession_LoadAndHistory(t *testing.T) {
	site := newTestSite(t)
	events := &syncEvents{}
	s := openTestSession(t, webview.URLTarget{URL: site.URL + "/"}, policy.Config{}, events)

	waitForTitle(t, s, "Home")
	assert.False(t, s.State().CanGoBack)

	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, webview.URLTarget{URL: site.URL + "/next"}, policy.Config{}))
	waitForTitle(t, s, "Next")
	assert.True(t, s.State().CanGoBack)

	require.NoError(t, s.GoBack(ctx))
	waitForTitle(t, s, "Home")
	assert.True(t, s.State().CanGoForward)
	assert.True(t, events.has(webview.KindCommitted))
}

func TestSession_DeniedHostNeverLoads(t *testing.T) {
	site := newTestSite(t)
	events := &syncEvents{}
	s := openTestSession(t, webview.URLTarget{URL: site.URL + "/"}, policy.Config{ForbiddenHosts: []string{"127.0.0.1"}}, events)

	require.Eventually(t, func() bool { return events.has(webview.KindPolicyDecision) }, 20*time.Second, 50*time.Millisecond)
	time.Sleep(500 * time.Millisecond)

	assert.False(t, events.has(webview.KindCommitted))
	assert.Equal(t, webview.DefaultTitle, s.State().PageTitle)
	assert.False(t, s.State().Loading)
}

func TestSession_BasicAuth(t *testing.T) {
	site := newTestSite(t)
	events := &syncEvents{}
	s := openTestSession(t, webview.URLTarget{URL: site.URL + "/private"}, policy.Config{
		Credential: &policy.Credential{Username: "alice", Secret: "s3cret"},
	}, events)

	waitForTitle(t, s, "Private")
	assert.True(t, events.has(webview.KindAuthChallenge))
}

func TestSession_InlineHTML(t *testing.T) {
	events := &syncEvents{}
	s := openTestSession(t, webview.HTMLTarget{HTML: "<title>Inline</title><p>hello</p>"}, policy.Config{AllowedHosts: []string{}}, events)

	waitForTitle(t, s, "Inline")
}
