// internal/browser/engine_test.go
package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webgate/internal/webview"
)

func newTestEngine(t *testing.T, exec runner) *Engine {
	t.Helper()
	e := NewEngine(context.Background(), time.Second, zaptest.NewLogger(t))
	e.exec = exec
	t.Cleanup(e.wait)
	return e
}

func noopExec(context.Context, ...chromedp.Action) error { return nil }

func TestEngine_LoadRejectsRelativeURL(t *testing.T) {
	e := newTestEngine(t, noopExec)
	assert.Error(t, e.Load(context.Background(), webview.Request{URL: "/relative", Method: "GET"}))
	assert.Error(t, e.LoadHTML(context.Background(), "<p/>", "relative/base"))
	assert.Nil(t, e.pending)
}

func TestEngine_PendingOverride(t *testing.T) {
	e := newTestEngine(t, noopExec)
	gen := "gen-1"
	e.bind(func() string { return gen }, func(string, error) {})
	ctx := context.Background()

	require.NoError(t, e.Load(ctx, webview.Request{URL: "https://example.com/", Method: "GET"}))
	assert.Nil(t, e.takeOverride(gen, "https://example.com/"), "plain GET needs no override")

	require.NoError(t, e.Load(ctx, webview.Request{
		URL:    "https://example.com",
		Method: "GET",
		Header: http.Header{"X-Test": {"1"}},
	}))
	assert.Nil(t, e.takeOverride(gen, "https://other.example/"), "another document does not take the override")
	assert.Nil(t, e.takeOverride("gen-0", "https://example.com/"), "another generation does not take the override")
	ov := e.takeOverride(gen, "https://EXAMPLE.com/#top")
	require.NotNil(t, ov)
	require.NotNil(t, ov.request)
	assert.Equal(t, "1", ov.request.Header.Get("X-Test"))
	assert.Nil(t, e.takeOverride(gen, "https://example.com/"), "an override is handed out once")

	require.NoError(t, e.LoadHTML(ctx, "<h1>hi</h1>", "https://example.com/base/"))
	ov = e.takeOverride(gen, "https://example.com/base/")
	require.NotNil(t, ov)
	assert.Equal(t, "<h1>hi</h1>", ov.html)

	require.NoError(t, e.LoadHTML(ctx, "<h1>hi</h1>", "https://example.com/base/"))
	require.NoError(t, e.Reload(ctx))
	assert.Nil(t, e.takeOverride(gen, "https://example.com/base/"), "a later command discards an unused override")
}

func TestEngine_AsyncFailureReportsIssuingGeneration(t *testing.T) {
	boom := errors.New("target closed")
	e := newTestEngine(t, func(context.Context, ...chromedp.Action) error { return boom })

	type failure struct {
		gen string
		err error
	}
	failures := make(chan failure, 1)
	gen := "gen-1"
	e.bind(func() string { return gen }, func(g string, err error) { failures <- failure{g, err} })

	require.NoError(t, e.GoBack(context.Background()))
	gen = "gen-2"

	select {
	case f := <-failures:
		assert.Equal(t, "gen-1", f.gen)
		assert.ErrorIs(t, f.err, boom)
		assert.Contains(t, f.err.Error(), "go_back")
	case <-time.After(time.Second):
		t.Fatal("async failure was not reported")
	}
}

func TestEngine_Refresh(t *testing.T) {
	e := newTestEngine(t, noopExec)
	e.history = func(context.Context) (int64, []*page.NavigationEntry, error) {
		return 0, []*page.NavigationEntry{{ID: 1, Title: "First"}, {ID: 2, Title: "Second"}}, nil
	}

	e.refresh(context.Background())
	assert.False(t, e.CanGoBack())
	assert.True(t, e.CanGoForward())
	assert.Equal(t, "First", e.Title())

	// A failed read keeps the previous snapshot.
	e.history = func(context.Context) (int64, []*page.NavigationEntry, error) {
		return 0, nil, errors.New("detached")
	}
	e.refresh(context.Background())
	assert.True(t, e.CanGoForward())
	assert.Equal(t, "First", e.Title())
}

func TestEngine_RefreshFallsBackToDocumentTitle(t *testing.T) {
	e := newTestEngine(t, noopExec)
	e.history = func(context.Context) (int64, []*page.NavigationEntry, error) {
		return 0, []*page.NavigationEntry{{ID: 1}}, nil
	}

	e.refresh(context.Background())
	assert.Empty(t, e.Title(), "no title anywhere leaves it empty")
}
