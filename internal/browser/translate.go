// internal/browser/translate.go
package browser

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"

	"github.com/xkilldash9x/webgate/internal/webview"
)

// ErrBlockedByPolicy ends a navigation whose redirect was denied.
var ErrBlockedByPolicy = errors.New("navigation blocked by policy")

// NavigationError is a network-level failure reported by the browser.
type NavigationError struct {
	URL      string
	Reason   string
	Canceled bool
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("navigation failed: %s", e.Reason)
	}
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Reason)
}

// authMethod maps the scheme of an HTTP auth challenge.
func authMethod(scheme string) webview.AuthMethod {
	switch strings.ToLower(scheme) {
	case "":
		return webview.AuthDefault
	case "basic":
		return webview.AuthBasic
	case "digest":
		return webview.AuthDigest
	default:
		return webview.AuthOther
	}
}

func authChallenge(ch *fetch.AuthChallenge) webview.AuthChallenge {
	if ch == nil {
		return webview.AuthChallenge{Method: webview.AuthDefault}
	}
	host := ch.Origin
	if u, err := url.Parse(ch.Origin); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return webview.AuthChallenge{
		Method: authMethod(ch.Scheme),
		Host:   host,
		Realm:  ch.Realm,
		Proxy:  ch.Source == fetch.AuthChallengeSourceProxy,
	}
}

func authResponse(resp webview.AuthResponse) *fetch.AuthChallengeResponse {
	switch resp.Disposition {
	case webview.UseCredential:
		if resp.Credential == nil {
			return &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
		}
		return &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseProvideCredentials,
			Username: resp.Credential.Username,
			Password: resp.Credential.Secret,
		}
	case webview.CancelChallenge:
		return &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseCancelAuth}
	default:
		return &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
	}
}

// requestHeaders merges the browser's headers with the caller's. Caller
// headers replace browser headers of the same name. Output is sorted by name.
func requestHeaders(base network.Headers, override http.Header) []*fetch.HeaderEntry {
	replaced := make(map[string]bool, len(override))
	for name := range override {
		replaced[strings.ToLower(name)] = true
	}

	var out []*fetch.HeaderEntry
	for name, value := range base {
		if replaced[strings.ToLower(name)] {
			continue
		}
		out = append(out, &fetch.HeaderEntry{Name: name, Value: fmt.Sprint(value)})
	}
	for name, values := range override {
		for _, v := range values {
			out = append(out, &fetch.HeaderEntry{Name: name, Value: v})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func encodeBody(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func htmlDataURL(html string) string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))
}

// isLocalURL reports URLs that never reach the network and so are not
// subject to the host policy.
func isLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "about", "data", "blob":
		return true
	}
	return false
}

// sameDocument compares two URLs the way Chrome reports a requested one:
// scheme and host case-insensitively, an empty path as "/", fragment ignored.
func sameDocument(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	norm := func(u *url.URL) string {
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path + "?" + u.RawQuery
	}
	return norm(ua) == norm(ub)
}

// historyState reads capabilities and the current title from a navigation history.
func historyState(current int64, entries []*page.NavigationEntry) (canBack, canForward bool, title string) {
	if current < 0 || current >= int64(len(entries)) {
		return false, false, ""
	}
	canBack = current > 0
	canForward = current < int64(len(entries))-1
	if e := entries[current]; e != nil {
		title = e.Title
	}
	return canBack, canForward, title
}

// historyNeighbour returns the entry id step positions away from current.
func historyNeighbour(current int64, entries []*page.NavigationEntry, step int64) (int64, error) {
	i := current + step
	if i < 0 || i >= int64(len(entries)) || entries[i] == nil {
		return 0, fmt.Errorf("no history entry at offset %d", step)
	}
	return entries[i].ID, nil
}
