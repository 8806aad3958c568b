// internal/webview/state.go
package webview

import (
	"sync"
)

// DefaultTitle is shown until a title override or an engine title replaces it.
const DefaultTitle = "Loading..."

// State is the observable view state of a session.
type State struct {
	PageTitle    string
	Loading      bool
	CanGoBack    bool
	CanGoForward bool

	// One-shot requests set by the host and consumed by Reconcile.
	RequestGoBack    bool
	RequestGoForward bool
	RequestReload    bool

	Generation string
}

// stateHub fans state snapshots out to subscribers. Each subscriber channel
// holds one snapshot; a newer snapshot replaces an unread one so publishing
// never blocks the loop.
type stateHub struct {
	mu     sync.Mutex
	subs   map[chan State]struct{}
	closed bool
}

func newStateHub() *stateHub {
	return &stateHub{subs: make(map[chan State]struct{})}
}

func (h *stateHub) subscribe() (<-chan State, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan State, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

func (h *stateHub) publish(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Drop the stale snapshot, then deliver the fresh one. We hold the
		// lock, so we are the only sender.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (h *stateHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan State]struct{})
}
