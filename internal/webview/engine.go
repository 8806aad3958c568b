// internal/webview/engine.go
package webview

import (
	"context"
)

// Engine is the rendering engine a controller drives. Commands may complete
// asynchronously; failures surface later as lifecycle events, not as returned
// errors. A returned error means the command could not be issued at all.
//
// CanGoBack, CanGoForward and Title read the engine's live properties and
// must not block.
type Engine interface {
	Load(ctx context.Context, req Request) error
	LoadHTML(ctx context.Context, html, baseURL string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error

	CanGoBack() bool
	CanGoForward() bool
	Title() string
}
