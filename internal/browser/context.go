// internal/browser/context.go
package browser

import "context"

// combineContext derives from tab, which carries the chromedp target, and is
// also cancelled when op is. Values come from tab only.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	if op == nil || op.Done() == nil {
		return combined, cancel
	}

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
