// internal/webview/auth.go
package webview

import (
	"github.com/xkilldash9x/webgate/internal/policy"
)

// AuthMethod identifies the kind of authentication a challenge asks for.
type AuthMethod string

const (
	AuthDefault     AuthMethod = "default"
	AuthBasic       AuthMethod = "basic"
	AuthDigest      AuthMethod = "digest"
	AuthServerTrust AuthMethod = "server-trust"
	AuthOther       AuthMethod = "other"
)

// acceptsCredential reports whether a username/secret pair can answer the method.
func (m AuthMethod) acceptsCredential() bool {
	switch m {
	case AuthDefault, AuthBasic, AuthDigest:
		return true
	}
	return false
}

// AuthChallenge is an engine-issued request for credentials or a trust decision.
type AuthChallenge struct {
	Method AuthMethod
	Host   string
	Realm  string
	// Proxy is set when the challenge came from a proxy rather than the origin.
	Proxy bool
}

// Disposition is how a challenge is answered.
type Disposition string

const (
	UseCredential          Disposition = "use-credential"
	PerformDefaultHandling Disposition = "perform-default-handling"
	CancelChallenge        Disposition = "cancel"
)

// AuthResponse is returned to the engine for a challenge. Credential is only
// set alongside UseCredential.
type AuthResponse struct {
	Disposition Disposition
	Credential  *policy.Credential
}

// decideAuth never overrides a trust decision, and only hands the credential to
// methods that take one.
func decideAuth(ch AuthChallenge, cred *policy.Credential) AuthResponse {
	if cred == nil {
		return AuthResponse{Disposition: PerformDefaultHandling}
	}
	switch {
	case ch.Method.acceptsCredential():
		c := *cred
		return AuthResponse{Disposition: UseCredential, Credential: &c}
	case ch.Method == AuthServerTrust:
		return AuthResponse{Disposition: PerformDefaultHandling}
	default:
		return AuthResponse{Disposition: CancelChallenge}
	}
}
