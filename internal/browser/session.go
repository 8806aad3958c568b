// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webgate/internal/config"
	"github.com/xkilldash9x/webgate/internal/dispatch"
	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

// Session is one browser tab governed by a navigation policy. Host methods
// are safe from any goroutine; they hand work to the session's dispatch loop.
type Session struct {
	logger *zap.Logger
	tick   time.Duration

	tabCtx    context.Context
	closeTab  context.CancelFunc
	runCancel context.CancelFunc
	group     *errgroup.Group

	loop   *dispatch.Loop
	inbox  *inbox
	engine *Engine
	bridge *bridge
	ctrl   *webview.Controller

	closeOnce sync.Once
	closeErr  error
}

// Open launches a browser, wires it to a controller and starts loading target.
func Open(ctx context.Context, cfg *config.Config, target webview.Target, logger *zap.Logger, opts ...webview.Option) (*Session, error) {
	tabCtx, closeTab, err := Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	s, err := newSession(tabCtx, closeTab, cfg, logger, opts...)
	if err != nil {
		closeTab()
		return nil, err
	}
	if err := s.Replace(ctx, target, cfg.Policy.Policy()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(tabCtx context.Context, closeTab context.CancelFunc, cfg *config.Config, logger *zap.Logger, opts ...webview.Option) (*Session, error) {
	log := logger.Named("session")
	if cfg.Session.Title != "" {
		opts = append([]webview.Option{webview.WithTitle(cfg.Session.Title)}, opts...)
	}

	s := &Session{
		logger:   log,
		tick:     cfg.Session.TickInterval,
		tabCtx:   tabCtx,
		closeTab: closeTab,
		loop:     dispatch.NewLoop(log, cfg.Session.QueueSize),
		inbox:    newInbox(),
	}
	s.engine = NewEngine(tabCtx, cfg.Browser.CommandTimeout, log)
	s.ctrl = webview.NewController(s.engine, log, opts...)
	s.engine.bind(s.ctrl.Generation, func(gen string, err error) {
		s.inbox.push(func() {
			s.ctrl.OnLifecycle(gen, webview.KindProvisionalFailed, "", err)
		})
	})
	s.bridge = newBridge(tabCtx, s.ctrl, s.engine, s.inbox.push, log)

	chromedp.ListenTarget(tabCtx, s.bridge.listen)
	if err := chromedp.Run(tabCtx, interceptActions()...); err != nil {
		return nil, fmt.Errorf("failed to enable request interception: %w", err)
	}

	runCtx, runCancel := context.WithCancel(tabCtx)
	s.runCancel = runCancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g
	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error { return s.inbox.pump(gctx, s.loop) })
	g.Go(func() error { return s.reconcileLoop(gctx) })

	log.Info("Session ready.")
	return s, nil
}

// Replace starts a new generation in the same tab. Callbacks still in
// flight for the previous target are ignored.
func (s *Session) Replace(ctx context.Context, target webview.Target, cfg policy.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return s.loop.Call(ctx, func() {
		s.bridge.reset()
		s.engine.pending = nil
		s.ctrl.Start(s.tabCtx, target, cfg)
	})
}

// GoBack requests a back navigation, applied on the next tick.
func (s *Session) GoBack(ctx context.Context) error {
	return s.loop.Post(ctx, s.ctrl.RequestGoBack)
}

// GoForward requests a forward navigation, applied on the next tick.
func (s *Session) GoForward(ctx context.Context) error {
	return s.loop.Post(ctx, s.ctrl.RequestGoForward)
}

// Reload requests a reload, applied on the next tick.
func (s *Session) Reload(ctx context.Context) error {
	return s.loop.Post(ctx, s.ctrl.RequestReload)
}

// State returns the latest published state.
func (s *Session) State() webview.State { return s.ctrl.State() }

// Subscribe streams state snapshots, latest wins.
func (s *Session) Subscribe() (<-chan webview.State, func()) { return s.ctrl.Subscribe() }

// Generation returns the id of the current target's session.
func (s *Session) Generation() string { return s.ctrl.Generation() }

// Done is closed when the session stops on its own or is closed.
func (s *Session) Done() <-chan struct{} { return s.loop.Done() }

// Close stops the loop, waits for issued commands and closes the browser.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		s.runCancel()
		err := s.group.Wait()
		s.closeTab()
		s.engine.wait()
		s.ctrl.Close()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, dispatch.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func (s *Session) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.loop.Post(ctx, s.reconcile); err != nil {
				return err
			}
		}
	}
}

// reconcile runs on the loop.
func (s *Session) reconcile() {
	st := s.ctrl.State()
	if !st.RequestGoBack && !st.RequestGoForward && !st.RequestReload {
		return
	}
	s.engine.refresh(s.tabCtx)
	s.ctrl.Reconcile(s.tabCtx, s.engine.CanGoBack(), s.engine.CanGoForward())
}
