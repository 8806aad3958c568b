// internal/webview/events.go
package webview

import (
	"github.com/xkilldash9x/webgate/internal/policy"
)

// EventKind names a navigation lifecycle point.
type EventKind string

const (
	KindPolicyDecision     EventKind = "policy_decision"
	KindAuthChallenge      EventKind = "auth_challenge"
	KindProvisionalStarted EventKind = "provisional_started"
	KindServerRedirect     EventKind = "server_redirect"
	KindCommitted          EventKind = "committed"
	KindFinished           EventKind = "finished"
	KindProvisionalFailed  EventKind = "provisional_failed"
	KindFailed             EventKind = "failed"
)

// Terminal reports whether the kind ends a navigation attempt.
func (k EventKind) Terminal() bool {
	switch k {
	case KindFinished, KindFailed, KindProvisionalFailed:
		return true
	}
	return false
}

// Event is forwarded to the observer once per lifecycle point. Events are
// transient; observers must not hold on to them expecting updates.
type Event interface {
	Kind() EventKind
	Generation() string
}

// Observer receives every event a session produces. It runs on the loop and
// must return promptly.
type Observer func(Event)

// Meta is embedded in every event.
type Meta struct {
	Gen string `json:"generation"`
}

func (m Meta) Generation() string { return m.Gen }

type PolicyDecision struct {
	Meta
	URL     string         `json:"url"`
	Host    string         `json:"host"`
	Verdict policy.Verdict `json:"-"`
}

type AuthChallengeEvent struct {
	Meta
	Challenge   AuthChallenge      `json:"challenge"`
	Disposition Disposition        `json:"disposition"`
	Credential  *policy.Credential `json:"-"`
}

type ProvisionalStarted struct {
	Meta
}

type ServerRedirect struct {
	Meta
	URL string `json:"url"`
}

type Committed struct {
	Meta
	URL string `json:"url"`
}

// Finished carries the title the engine reported when the load completed.
type Finished struct {
	Meta
	Title string `json:"title"`
}

// ProvisionalFailed is a failure before commit (DNS, connection refused, ...).
type ProvisionalFailed struct {
	Meta
	Err error `json:"-"`
}

// Failed is a failure after commit.
type Failed struct {
	Meta
	Err error `json:"-"`
}

func (PolicyDecision) Kind() EventKind     { return KindPolicyDecision }
func (AuthChallengeEvent) Kind() EventKind { return KindAuthChallenge }
func (ProvisionalStarted) Kind() EventKind { return KindProvisionalStarted }
func (ServerRedirect) Kind() EventKind     { return KindServerRedirect }
func (Committed) Kind() EventKind          { return KindCommitted }
func (Finished) Kind() EventKind           { return KindFinished }
func (ProvisionalFailed) Kind() EventKind  { return KindProvisionalFailed }
func (Failed) Kind() EventKind             { return KindFailed }
