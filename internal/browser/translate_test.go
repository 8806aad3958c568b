// internal/browser/translate_test.go
package browser

import (
	"net/http"
	"testing"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		scheme string
		want   webview.AuthMethod
	}{
		{"", webview.AuthDefault},
		{"basic", webview.AuthBasic},
		{"Basic", webview.AuthBasic},
		{"DIGEST", webview.AuthDigest},
		{"NTLM", webview.AuthOther},
		{"Negotiate", webview.AuthOther},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			assert.Equal(t, tt.want, authMethod(tt.scheme))
		})
	}
}

func TestAuthChallenge(t *testing.T) {
	ch := authChallenge(&fetch.AuthChallenge{
		Source: fetch.AuthChallengeSourceProxy,
		Origin: "http://proxy.corp:3128",
		Scheme: "digest",
		Realm:  "corp",
	})
	assert.Equal(t, webview.AuthChallenge{Method: webview.AuthDigest, Host: "proxy.corp", Realm: "corp", Proxy: true}, ch)

	assert.Equal(t, webview.AuthDefault, authChallenge(nil).Method)
}

func TestAuthResponse(t *testing.T) {
	cred := &policy.Credential{Username: "bob", Secret: "pw"}

	got := authResponse(webview.AuthResponse{Disposition: webview.UseCredential, Credential: cred})
	assert.Equal(t, &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseProvideCredentials,
		Username: "bob",
		Password: "pw",
	}, got)

	assert.Equal(t, fetch.AuthChallengeResponseResponseCancelAuth,
		authResponse(webview.AuthResponse{Disposition: webview.CancelChallenge}).Response)
	assert.Equal(t, fetch.AuthChallengeResponseResponseDefault,
		authResponse(webview.AuthResponse{Disposition: webview.PerformDefaultHandling}).Response)
	// UseCredential without a credential cannot provide one.
	assert.Equal(t, fetch.AuthChallengeResponseResponseDefault,
		authResponse(webview.AuthResponse{Disposition: webview.UseCredential}).Response)
}

func TestRequestHeaders(t *testing.T) {
	base := network.Headers{"accept": "*/*", "Cookie": "a=1"}
	override := http.Header{"Accept": {"application/json"}, "X-Trace": {"1", "2"}}

	assert.Equal(t, []*fetch.HeaderEntry{
		{Name: "Accept", Value: "application/json"},
		{Name: "Cookie", Value: "a=1"},
		{Name: "X-Trace", Value: "1"},
		{Name: "X-Trace", Value: "2"},
	}, requestHeaders(base, override))

	assert.Empty(t, requestHeaders(nil, nil))
}

func TestIsLocalURL(t *testing.T) {
	assert.True(t, isLocalURL("about:blank"))
	assert.True(t, isLocalURL(htmlDataURL("<p>x</p>")))
	assert.True(t, isLocalURL("blob:https://example.com/uuid"))
	assert.False(t, isLocalURL("https://example.com/"))
	assert.False(t, isLocalURL("::not a url"))
}

func TestSameDocument(t *testing.T) {
	assert.True(t, sameDocument("https://example.com", "https://example.com/"))
	assert.True(t, sameDocument("HTTPS://Example.COM/a?q=1", "https://example.com/a?q=1#frag"))
	assert.False(t, sameDocument("https://example.com/a", "https://example.com/b"))
	assert.False(t, sameDocument("https://example.com/a?q=1", "https://example.com/a?q=2"))
	assert.False(t, sameDocument("https://example.com/", "::not a url"))
}

func TestHistoryState(t *testing.T) {
	entries := []*page.NavigationEntry{
		{ID: 10, Title: "one"},
		{ID: 11, Title: "two"},
		{ID: 12, Title: "three"},
	}

	back, fwd, title := historyState(1, entries)
	assert.True(t, back)
	assert.True(t, fwd)
	assert.Equal(t, "two", title)

	back, fwd, _ = historyState(0, entries[:1])
	assert.False(t, back)
	assert.False(t, fwd)

	back, fwd, title = historyState(5, entries)
	assert.False(t, back)
	assert.False(t, fwd)
	assert.Empty(t, title)

	id, err := historyNeighbour(1, entries, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
	id, err = historyNeighbour(1, entries, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	_, err = historyNeighbour(0, entries, -1)
	assert.Error(t, err)
}

func TestNavigationError(t *testing.T) {
	assert.Equal(t, "navigation failed: net::ERR_FAILED", (&NavigationError{Reason: "net::ERR_FAILED"}).Error())
	assert.Equal(t, "navigation to https://x.example failed: net::ERR_FAILED",
		(&NavigationError{URL: "https://x.example", Reason: "net::ERR_FAILED"}).Error())
}
