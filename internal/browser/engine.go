// internal/browser/engine.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgate/internal/webview"
)

// runner executes CDP actions against a chromedp context.
type runner func(ctx context.Context, actions ...chromedp.Action) error

// historyFunc reads the tab's navigation history.
type historyFunc func(ctx context.Context) (int64, []*page.NavigationEntry, error)

// override replaces the document request of the navigation that set it.
// There is one slot: the generation that issued the load owns it until the
// matching request is paused.
type override struct {
	gen     string
	url     string
	request *webview.Request
	html    string
}

// Engine drives one Chrome tab. Load, LoadHTML, GoBack, GoForward and Reload
// return once the command is issued; the outcome arrives as lifecycle events
// through the bridge. Capabilities and title are a snapshot refreshed on the
// dispatch loop before terminal events are delivered.
type Engine struct {
	logger  *zap.Logger
	tabCtx  context.Context
	timeout time.Duration
	exec    runner
	history historyFunc

	generation func() string
	fail       func(gen string, err error)
	wg         sync.WaitGroup

	mu         sync.RWMutex
	canBack    bool
	canForward bool
	title      string

	// Owned by the dispatch loop.
	pending *override
}

var _ webview.Engine = (*Engine)(nil)

// NewEngine creates an engine bound to a chromedp tab context.
func NewEngine(tabCtx context.Context, timeout time.Duration, logger *zap.Logger) *Engine {
	e := &Engine{
		logger:     logger.Named("engine"),
		tabCtx:     tabCtx,
		timeout:    timeout,
		exec:       chromedp.Run,
		generation: func() string { return "" },
		fail:       func(string, error) {},
	}
	e.history = e.cdpHistory
	return e
}

// bind connects async command failures to the session that issued them.
func (e *Engine) bind(generation func() string, fail func(gen string, err error)) {
	e.generation = generation
	e.fail = fail
}

// Load navigates to req.URL. A non-GET method, extra headers or a body are
// applied to the intercepted document request.
func (e *Engine) Load(ctx context.Context, req webview.Request) error {
	if err := checkURL(req.URL); err != nil {
		return err
	}
	e.pending = nil
	if req.Method != "GET" || len(req.Header) > 0 || len(req.Body) > 0 {
		r := req
		e.pending = &override{gen: e.generation(), url: req.URL, request: &r}
	}
	e.navigate(req.URL)
	return nil
}

// LoadHTML renders html. With a base URL the document is served in place of
// the base URL's response so relative references resolve against it.
func (e *Engine) LoadHTML(ctx context.Context, html, baseURL string) error {
	if baseURL == "" {
		e.pending = nil
		e.navigate(htmlDataURL(html))
		return nil
	}
	if err := checkURL(baseURL); err != nil {
		return err
	}
	e.pending = &override{gen: e.generation(), url: baseURL, html: html}
	e.navigate(baseURL)
	return nil
}

func (e *Engine) GoBack(ctx context.Context) error {
	e.pending = nil
	e.async("go_back", e.traverse(-1))
	return nil
}

func (e *Engine) GoForward(ctx context.Context) error {
	e.pending = nil
	e.async("go_forward", e.traverse(1))
	return nil
}

func (e *Engine) Reload(ctx context.Context) error {
	e.pending = nil
	e.async("reload", page.Reload())
	return nil
}

func (e *Engine) CanGoBack() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canBack
}

func (e *Engine) CanGoForward() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canForward
}

func (e *Engine) Title() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.title
}

// takeOverride hands the pending override to the bridge exactly once, and
// only for a request of the same generation addressed to the same document.
func (e *Engine) takeOverride(gen, rawURL string) *override {
	ov := e.pending
	if ov == nil || ov.gen != gen || !sameDocument(ov.url, rawURL) {
		return nil
	}
	e.pending = nil
	return ov
}

// refresh re-reads history and title. On error the previous snapshot is kept.
func (e *Engine) refresh(ctx context.Context) {
	opCtx, cancel := combineContext(e.tabCtx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, e.timeout)
	defer cancelTimeout()

	current, entries, err := e.history(opCtx)
	if err != nil {
		e.logger.Debug("Could not read navigation history.", zap.Error(err))
		return
	}
	canBack, canForward, title := historyState(current, entries)
	if title == "" {
		var doc string
		if err := e.exec(opCtx, chromedp.Title(&doc)); err == nil {
			title = doc
		}
	}

	e.mu.Lock()
	e.canBack, e.canForward, e.title = canBack, canForward, title
	e.mu.Unlock()
}

// wait blocks until issued commands have returned.
func (e *Engine) wait() {
	e.wg.Wait()
}

func (e *Engine) navigate(target string) {
	e.async("navigate", chromedp.ActionFunc(func(ctx context.Context) error {
		// The error text of a failed load is reported by the network events.
		var res page.NavigateReturns
		return cdp.Execute(ctx, page.CommandNavigate, page.Navigate(target), &res)
	}))
}

func (e *Engine) traverse(step int64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		current, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		id, err := historyNeighbour(current, entries, step)
		if err != nil {
			return err
		}
		return page.NavigateToHistoryEntry(id).Do(ctx)
	})
}

// async issues a command without waiting for it. A failure is reported for
// the generation that was current when the command was issued.
func (e *Engine) async(command string, action chromedp.Action) {
	gen := e.generation()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.exec(e.tabCtx, action)
		if err == nil || e.tabCtx.Err() != nil {
			return
		}
		e.logger.Warn("Browser command failed.", zap.String("command", command), zap.Error(err))
		e.fail(gen, fmt.Errorf("%s: %w", command, err))
	}()
}

func (e *Engine) cdpHistory(ctx context.Context) (current int64, entries []*page.NavigationEntry, err error) {
	err = e.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		current, entries, err = page.GetNavigationHistory().Do(ctx)
		return err
	}))
	return current, entries, err
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid navigation URL: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("navigation URL %q is not absolute", raw)
	}
	return nil
}
