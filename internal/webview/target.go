// internal/webview/target.go
package webview

import (
	"net/http"
)

// Target is the content a session loads. It is one of URLTarget, RequestTarget
// or HTMLTarget.
type Target interface {
	isTarget()
}

// URLTarget loads a plain URL with a GET request.
type URLTarget struct {
	URL string
}

// RequestTarget loads a URL with a caller-supplied method, headers and body.
type RequestTarget struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// HTMLTarget loads raw markup. Relative references resolve against BaseURL
// when one is given.
type HTMLTarget struct {
	HTML    string
	BaseURL string
}

func (URLTarget) isTarget()     {}
func (RequestTarget) isTarget() {}
func (HTMLTarget) isTarget()    {}

// Request is what the engine is asked to load for URL and request targets.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// toRequest normalizes URL and request targets into an engine request.
func toRequest(t Target) (Request, bool) {
	switch t := t.(type) {
	case URLTarget:
		return Request{URL: t.URL, Method: http.MethodGet}, true
	case RequestTarget:
		method := t.Method
		if method == "" {
			method = http.MethodGet
		}
		return Request{
			URL:    t.URL,
			Method: method,
			Header: t.Header.Clone(),
			Body:   append([]byte(nil), t.Body...),
		}, true
	}
	return Request{}, false
}
