// internal/dispatch/loop.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when posting to a loop that has been shut down.
var ErrClosed = errors.New("dispatch loop is shut down")

// Loop runs posted work one item at a time on a single goroutine. Everything
// that touches session state goes through it, which is what lets the
// controller run without locks.
type Loop struct {
	logger *zap.Logger
	queue  chan func()

	// Tracks Post calls that are between the shutdown check and the send.
	activePostsWg sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex

	done chan struct{}
}

// NewLoop creates a loop with the given queue capacity. Run must be called to
// start processing.
func NewLoop(logger *zap.Logger, bufferSize int) *Loop {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Loop{
		logger:       logger.Named("dispatch"),
		queue:        make(chan func(), bufferSize),
		shutdownChan: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	l.shutdownMu.Lock()
	if l.isShutdown {
		l.shutdownMu.Unlock()
		return ErrClosed
	}
	l.activePostsWg.Add(1)
	l.shutdownMu.Unlock()
	defer l.activePostsWg.Done()

	select {
	case l.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.shutdownChan:
		return ErrClosed
	}
}

// Call posts fn and waits until it has run on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The loop may have run it just before stopping.
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Run processes work until ctx is cancelled or Shutdown is called. Work still
// queued at that point is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.logger.Debug("Dispatch loop started.")

	for {
		select {
		case <-ctx.Done():
			l.Shutdown()
			return ctx.Err()
		case <-l.shutdownChan:
			return nil
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Shutdown stops accepting work. It is safe to call more than once and from
// any goroutine, including the loop itself.
func (l *Loop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.shutdownMu.Lock()
		l.isShutdown = true
		l.shutdownMu.Unlock()

		close(l.shutdownChan)

		// Let blocked Post calls observe the shutdown before we report done.
		l.activePostsWg.Wait()
		l.logger.Debug("Dispatch loop shut down.")
	})
}

// execute runs one item, keeping the loop alive if it panics.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Panic in dispatched work.",
				zap.String("panic", fmt.Sprint(r)),
				zap.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
