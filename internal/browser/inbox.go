// internal/browser/inbox.go
package browser

import (
	"context"
	"sync"

	"github.com/xkilldash9x/webgate/internal/dispatch"
)

// inbox is an unbounded FIFO between the CDP event reader and the dispatch
// loop. push never blocks, so a busy loop cannot stall chromedp's reader.
type inbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(fn func()) {
	b.mu.Lock()
	b.items = append(b.items, fn)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) drain() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// pump forwards queued work to the loop in arrival order until ctx is done or
// the loop shuts down.
func (b *inbox) pump(ctx context.Context, loop *dispatch.Loop) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.signal:
		}
		for _, fn := range b.drain() {
			if err := loop.Post(ctx, fn); err != nil {
				return err
			}
		}
	}
}
