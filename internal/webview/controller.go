// internal/webview/controller.go
package webview

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgate/internal/policy"
)

// Controller mediates between a rendering engine's callbacks and the
// observable session state. All methods except Generation, State and
// Subscribe must be called from the single goroutine that owns the session
// (see dispatch.Loop).
type Controller struct {
	logger   *zap.Logger
	engine   Engine
	observer Observer
	title    string

	cfg   policy.Config
	state State
	gen   atomic.Pointer[string]

	// snapshot is the last published state, readable from any goroutine.
	snapshot atomic.Pointer[State]
	hub      *stateHub
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers the callback that receives every event.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithTitle pins the page title; engine-reported titles are ignored.
func WithTitle(title string) Option {
	return func(c *Controller) { c.title = title }
}

// NewController creates an idle controller. Nothing is loaded until Start.
func NewController(engine Engine, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		logger: logger.Named("controller"),
		engine: engine,
		hub:    newStateHub(),
	}
	for _, opt := range opts {
		opt(c)
	}
	empty := ""
	c.gen.Store(&empty)
	c.state = State{PageTitle: c.initialTitle()}
	c.commit()
	return c
}

func (c *Controller) initialTitle() string {
	if c.title != "" {
		return c.title
	}
	return DefaultTitle
}

// Generation returns the id of the current session. Safe from any goroutine.
func (c *Controller) Generation() string {
	return *c.gen.Load()
}

// State returns a copy of the last published state. Safe from any goroutine.
func (c *Controller) State() State {
	return *c.snapshot.Load()
}

// Subscribe delivers a snapshot after every state change. Slow readers only
// ever see the latest snapshot.
func (c *Controller) Subscribe() (<-chan State, func()) {
	return c.hub.subscribe()
}

// Close releases subscribers.
func (c *Controller) Close() {
	c.hub.close()
}

// Start begins a new session generation and issues the initial load.
// Callbacks tagged with an older generation are ignored from here on.
func (c *Controller) Start(ctx context.Context, target Target, cfg policy.Config) {
	gen := uuid.New().String()
	c.gen.Store(&gen)
	c.cfg = cfg
	c.state = State{PageTitle: c.initialTitle(), Generation: gen}
	c.commit()

	log := c.logger.With(zap.String("generation", gen))

	var err error
	switch t := target.(type) {
	case HTMLTarget:
		log.Info("Loading HTML content.", zap.String("base_url", t.BaseURL), zap.Int("bytes", len(t.HTML)))
		err = c.engine.LoadHTML(ctx, t.HTML, t.BaseURL)
	default:
		req, ok := toRequest(target)
		if !ok {
			err = fmt.Errorf("unsupported navigation target %T", target)
			break
		}
		log.Info("Loading request.", zap.String("method", req.Method), zap.String("url", req.URL))
		err = c.engine.Load(ctx, req)
	}

	if err != nil {
		// Surface issue failures the same way the engine reports them.
		c.OnLifecycle(gen, KindProvisionalFailed, "", fmt.Errorf("failed to start load: %w", err))
	}
}

// RequestGoBack asks for a back navigation on the next Reconcile.
func (c *Controller) RequestGoBack() { c.setRequest(&c.state.RequestGoBack) }

// RequestGoForward asks for a forward navigation on the next Reconcile.
func (c *Controller) RequestGoForward() { c.setRequest(&c.state.RequestGoForward) }

// RequestReload asks for a reload on the next Reconcile.
func (c *Controller) RequestReload() { c.setRequest(&c.state.RequestReload) }

func (c *Controller) setRequest(flag *bool) {
	if *flag {
		return
	}
	*flag = true
	c.commit()
}

// Reconcile services at most one pending request, in priority order
// back > forward > reload. The engine's capabilities passed in are
// authoritative: a back or forward request the engine can no longer honour is
// dropped rather than kept for later, and the next flag is considered in the
// same pass.
func (c *Controller) Reconcile(ctx context.Context, engineCanGoBack, engineCanGoForward bool) {
	s := &c.state
	if !s.RequestGoBack && !s.RequestGoForward && !s.RequestReload {
		return
	}
	defer c.commit()

	if s.RequestGoBack {
		s.RequestGoBack = false
		if engineCanGoBack {
			c.issue("go_back", c.engine.GoBack(ctx))
			return
		}
		c.logger.Debug("Dropping stale back request.")
	}
	if s.RequestGoForward {
		s.RequestGoForward = false
		if engineCanGoForward {
			c.issue("go_forward", c.engine.GoForward(ctx))
			return
		}
		c.logger.Debug("Dropping stale forward request.")
	}
	if s.RequestReload {
		s.RequestReload = false
		c.issue("reload", c.engine.Reload(ctx))
	}
}

func (c *Controller) issue(command string, err error) {
	if err != nil {
		c.OnLifecycle(c.Generation(), KindProvisionalFailed, "", fmt.Errorf("%s: %w", command, err))
	}
}

// OnPolicyQuery decides one navigation request. It always returns a verdict;
// queries from a superseded session are denied without notifying the observer.
func (c *Controller) OnPolicyQuery(gen, rawURL string) policy.Verdict {
	if c.stale(gen, KindPolicyDecision) {
		return policy.Deny
	}

	host, _ := policy.HostOf(rawURL)
	verdict := policy.Evaluate(host, c.cfg)

	c.logger.Debug("Policy decision.",
		zap.String("url", rawURL),
		zap.String("host", host),
		zap.Stringer("verdict", verdict))
	c.emit(PolicyDecision{Meta: Meta{Gen: gen}, URL: rawURL, Host: host, Verdict: verdict})
	return verdict
}

// OnAuthChallenge answers an authentication challenge. Trust decisions are
// always left to the engine's default handling.
func (c *Controller) OnAuthChallenge(gen string, ch AuthChallenge) AuthResponse {
	if c.stale(gen, KindAuthChallenge) {
		return AuthResponse{Disposition: PerformDefaultHandling}
	}

	resp := decideAuth(ch, c.cfg.Credential)
	c.logger.Debug("Auth challenge.",
		zap.String("method", string(ch.Method)),
		zap.String("host", ch.Host),
		zap.String("disposition", string(resp.Disposition)))
	c.emit(AuthChallengeEvent{
		Meta:        Meta{Gen: gen},
		Challenge:   ch,
		Disposition: resp.Disposition,
		Credential:  resp.Credential,
	})
	return resp
}

// OnLifecycle applies one navigation lifecycle callback. url is the navigated
// URL for redirects and commits; err is set for the failure kinds.
func (c *Controller) OnLifecycle(gen string, kind EventKind, url string, err error) {
	if c.stale(gen, kind) {
		return
	}

	meta := Meta{Gen: gen}
	var ev Event
	switch kind {
	case KindProvisionalStarted:
		c.state.Loading = true
		ev = ProvisionalStarted{Meta: meta}
	case KindServerRedirect:
		ev = ServerRedirect{Meta: meta, URL: url}
	case KindCommitted:
		ev = Committed{Meta: meta, URL: url}
	case KindFinished:
		title := c.engine.Title()
		c.settle()
		switch {
		case c.title != "":
			c.state.PageTitle = c.title
		case title != "":
			c.state.PageTitle = title
		}
		ev = Finished{Meta: meta, Title: title}
	case KindProvisionalFailed:
		c.settle()
		c.logger.Warn("Provisional navigation failed.", zap.Error(err))
		ev = ProvisionalFailed{Meta: meta, Err: err}
	case KindFailed:
		c.settle()
		c.logger.Warn("Navigation failed.", zap.Error(err))
		ev = Failed{Meta: meta, Err: err}
	default:
		c.logger.Error("Unknown lifecycle event.", zap.String("kind", string(kind)))
		return
	}

	c.commit()
	c.emit(ev)
}

// settle ends a navigation attempt and re-reads history capabilities from the
// engine, which owns the back/forward list.
func (c *Controller) settle() {
	c.state.Loading = false
	c.state.CanGoBack = c.engine.CanGoBack()
	c.state.CanGoForward = c.engine.CanGoForward()
}

func (c *Controller) stale(gen string, kind EventKind) bool {
	current := c.Generation()
	if current != "" && gen == current {
		return false
	}
	c.logger.Debug("Ignoring event from superseded session.",
		zap.String("kind", string(kind)),
		zap.String("event_generation", gen),
		zap.String("current_generation", current))
	return true
}

func (c *Controller) emit(ev Event) {
	if c.observer == nil {
		return
	}
	c.observer(ev)
}

func (c *Controller) commit() {
	s := c.state
	c.snapshot.Store(&s)
	c.hub.publish(s)
}
