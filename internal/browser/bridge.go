// internal/browser/bridge.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

// attempt tracks the main-frame navigation in flight.
type attempt struct {
	docs      map[network.RequestID]bool
	started   bool
	committed bool
	done      bool
}

func (a *attempt) active() bool { return a.started && !a.done }

// bridge translates CDP events into controller callbacks. listen runs on
// chromedp's event goroutine and only enqueues; every handler runs on the
// dispatch loop, so paused requests are answered on the same turn as the
// policy decision. Each event carries the generation current when it
// arrived, so events queued across a Replace are treated as stale.
type bridge struct {
	logger    *zap.Logger
	ctrl      *webview.Controller
	engine    *Engine
	exec      runner
	tabCtx    context.Context
	timeout   time.Duration
	post      func(func())
	mainFrame func() cdp.FrameID

	attempt attempt
	denied  map[network.RequestID]bool
	// errorPage is set while Chrome shows its own error document.
	errorPage bool
}

func newBridge(tabCtx context.Context, ctrl *webview.Controller, engine *Engine, post func(func()), logger *zap.Logger) *bridge {
	return &bridge{
		logger:  logger.Named("bridge"),
		ctrl:    ctrl,
		engine:  engine,
		exec:    chromedp.Run,
		tabCtx:  tabCtx,
		timeout: engine.timeout,
		post:    post,
		mainFrame: func() cdp.FrameID {
			if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
				return cdp.FrameID(c.Target.TargetID)
			}
			return ""
		},
		denied: make(map[network.RequestID]bool),
	}
}

// interceptActions turns on request interception for documents and auth.
func interceptActions() []chromedp.Action {
	return []chromedp.Action{
		network.Enable(),
		page.Enable(),
		fetch.Enable().
			WithPatterns([]*fetch.RequestPattern{{
				URLPattern:   "*",
				ResourceType: network.ResourceTypeDocument,
				RequestStage: fetch.RequestStageRequest,
			}}).
			WithHandleAuthRequests(true),
	}
}

// reset forgets navigation tracking. Called on the loop when a new
// generation starts.
func (b *bridge) reset() {
	b.attempt = attempt{}
	b.denied = make(map[network.RequestID]bool)
	b.errorPage = false
}

func (b *bridge) listen(ev interface{}) {
	gen := b.ctrl.Generation()
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		b.post(func() { b.onRequestPaused(gen, ev) })
	case *fetch.EventAuthRequired:
		b.post(func() { b.onAuthRequired(gen, ev) })
	case *network.EventRequestWillBeSent:
		if ev.RedirectResponse != nil && ev.Type == network.ResourceTypeDocument {
			b.post(func() { b.onRedirect(gen, ev) })
		}
	case *network.EventLoadingFailed:
		if ev.Type == network.ResourceTypeDocument {
			b.post(func() { b.onLoadingFailed(gen, ev) })
		}
	case *page.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			b.post(func() { b.onFrameNavigated(gen, ev) })
		}
	case *page.EventLoadEventFired:
		b.post(func() { b.onLoadEventFired(gen) })
	}
}

func (b *bridge) isMain(frame cdp.FrameID) bool {
	main := b.mainFrame()
	return main == "" || frame == main
}

// stale reports whether an event arrived before the current generation
// started.
func (b *bridge) stale(gen string) bool {
	return gen != b.ctrl.Generation()
}

func (b *bridge) onRequestPaused(gen string, ev *fetch.EventRequestPaused) {
	if ev.Request == nil {
		b.resolve(fetch.ContinueRequest(ev.RequestID))
		return
	}
	rawURL := ev.Request.URL + ev.Request.URLFragment

	if isLocalURL(rawURL) {
		b.resolve(fetch.ContinueRequest(ev.RequestID))
		return
	}

	// A stale query is answered Deny without an event.
	if b.ctrl.OnPolicyQuery(gen, rawURL) == policy.Deny {
		b.denied[ev.NetworkID] = true
		b.resolve(fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient))
		if !b.stale(gen) && b.isMain(ev.FrameID) && ev.RedirectedRequestID != "" &&
			b.attempt.active() && b.attempt.docs[ev.NetworkID] {
			b.finish(gen, webview.KindProvisionalFailed, ErrBlockedByPolicy)
		}
		return
	}

	var ov *override
	if b.isMain(ev.FrameID) {
		redirect := ev.RedirectedRequestID != ""
		if !redirect {
			ov = b.engine.takeOverride(gen, rawURL)
			b.attempt = attempt{docs: map[network.RequestID]bool{}}
			b.errorPage = false
		}
		b.attempt.docs[ev.NetworkID] = true
		if !b.attempt.started {
			b.attempt.started = true
			b.ctrl.OnLifecycle(gen, webview.KindProvisionalStarted, "", nil)
		}
	}

	switch {
	case ov != nil && ov.request != nil:
		b.logger.Debug("Applying request override.", zap.String("method", ov.request.Method))
		p := fetch.ContinueRequest(ev.RequestID).
			WithMethod(ov.request.Method).
			WithHeaders(requestHeaders(ev.Request.Headers, ov.request.Header))
		if len(ov.request.Body) > 0 {
			p = p.WithPostData(encodeBody(ov.request.Body))
		}
		b.resolve(p)
	case ov != nil:
		b.logger.Debug("Serving HTML content for base URL.", zap.String("url", rawURL))
		b.resolve(fetch.FulfillRequest(ev.RequestID, 200).
			WithResponseHeaders([]*fetch.HeaderEntry{{Name: "Content-Type", Value: "text/html; charset=utf-8"}}).
			WithBody(encodeBody([]byte(ov.html))))
	default:
		b.resolve(fetch.ContinueRequest(ev.RequestID))
	}
}

func (b *bridge) onAuthRequired(gen string, ev *fetch.EventAuthRequired) {
	resp := b.ctrl.OnAuthChallenge(gen, authChallenge(ev.AuthChallenge))
	b.resolve(fetch.ContinueWithAuth(ev.RequestID, authResponse(resp)))
}

func (b *bridge) onRedirect(gen string, ev *network.EventRequestWillBeSent) {
	if b.stale(gen) || !b.isMain(ev.FrameID) || !b.attempt.active() || !b.attempt.docs[ev.RequestID] {
		return
	}
	u := ""
	if ev.Request != nil {
		u = ev.Request.URL + ev.Request.URLFragment
	}
	b.ctrl.OnLifecycle(gen, webview.KindServerRedirect, u, nil)
}

func (b *bridge) onFrameNavigated(gen string, ev *page.EventFrameNavigated) {
	if b.stale(gen) {
		return
	}
	// Chrome's own error document for a failed or blocked load. The failure
	// is reported by loadingFailed, or not at all for a denial.
	if ev.Frame.UnreachableURL != "" {
		b.errorPage = true
		b.logger.Debug("Ignoring error page.", zap.String("unreachable_url", ev.Frame.UnreachableURL))
		return
	}
	b.errorPage = false
	// Navigations that never reach the network start here.
	if !b.attempt.active() {
		b.attempt = attempt{docs: map[network.RequestID]bool{}, started: true}
		b.ctrl.OnLifecycle(gen, webview.KindProvisionalStarted, "", nil)
	}
	b.attempt.committed = true
	b.ctrl.OnLifecycle(gen, webview.KindCommitted, ev.Frame.URL+ev.Frame.URLFragment, nil)
}

func (b *bridge) onLoadEventFired(gen string) {
	if b.stale(gen) || b.errorPage || !b.attempt.active() {
		return
	}
	b.finish(gen, webview.KindFinished, nil)
}

func (b *bridge) onLoadingFailed(gen string, ev *network.EventLoadingFailed) {
	if b.denied[ev.RequestID] {
		delete(b.denied, ev.RequestID)
		return
	}
	if b.stale(gen) || !b.attempt.active() || !b.attempt.docs[ev.RequestID] {
		return
	}
	err := &NavigationError{Reason: ev.ErrorText, Canceled: ev.Canceled}
	kind := webview.KindProvisionalFailed
	if b.attempt.committed {
		kind = webview.KindFailed
	}
	b.finish(gen, kind, err)
}

// finish delivers a terminal event after refreshing the engine snapshot, so
// the controller reads current capabilities and title.
func (b *bridge) finish(gen string, kind webview.EventKind, err error) {
	b.attempt.done = true
	b.engine.refresh(b.tabCtx)
	b.ctrl.OnLifecycle(gen, kind, "", err)
}

// resolve answers a paused request or challenge. Failures only get logged:
// the browser reports the request as failed on its own.
func (b *bridge) resolve(action chromedp.Action) {
	ctx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	defer cancel()
	if err := b.exec(ctx, action); err != nil && b.tabCtx.Err() == nil {
		b.logger.Warn("Failed to resolve intercepted request.", zap.Error(err))
	}
}
