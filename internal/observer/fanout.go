// internal/observer/fanout.go
package observer

import "github.com/xkilldash9x/webgate/internal/webview"

// Fanout delivers each event to every non-nil observer, in order.
func Fanout(observers ...webview.Observer) webview.Observer {
	active := make([]webview.Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	return func(ev webview.Event) {
		for _, o := range active {
			o(ev)
		}
	}
}
