// internal/policy/policy.go
package policy

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Verdict is the outcome of evaluating one navigation request.
type Verdict int

const (
	Deny Verdict = iota
	Allow
)

func (v Verdict) String() string {
	if v == Allow {
		return "allow"
	}
	return "deny"
}

// MatchMode selects how host list entries are compared against a candidate host.
type MatchMode string

const (
	// MatchSubstring accepts any host that contains the entry. This is the
	// historical behaviour: "example.com" also matches "evil-example.com.attacker.net".
	MatchSubstring MatchMode = "substring"
	// MatchDomain accepts the entry itself and its subdomains only.
	MatchDomain MatchMode = "domain"
)

// Credential is the username/secret pair offered to authentication challenges.
type Credential struct {
	Username string `mapstructure:"username" yaml:"username"`
	Secret   string `mapstructure:"secret" yaml:"-"`
}

// String never prints the secret.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{Username: %q, Secret: <redacted>}", c.Username)
}

// Config is the policy a session runs under. A nil host list is absent;
// a non-nil empty list is present and matches nothing.
type Config struct {
	AllowedHosts   []string
	ForbiddenHosts []string
	Credential     *Credential
	MatchMode      MatchMode
}

// Validate rejects match modes we don't know and, in domain mode, entries that
// are not registrable names (a bare public suffix like "com" would match the world).
func (c Config) Validate() error {
	switch c.MatchMode {
	case "", MatchSubstring:
		return nil
	case MatchDomain:
	default:
		return fmt.Errorf("unknown match mode %q", c.MatchMode)
	}

	for _, list := range [][]string{c.AllowedHosts, c.ForbiddenHosts} {
		for _, entry := range list {
			name := strings.TrimPrefix(strings.ToLower(entry), ".")
			if _, err := publicsuffix.EffectiveTLDPlusOne(name); err != nil {
				return fmt.Errorf("host entry %q is not a registrable domain: %w", entry, err)
			}
		}
	}
	return nil
}

// Evaluate decides whether a navigation to host may proceed.
// Forbidden entries always win over allowed entries.
func Evaluate(host string, cfg Config) Verdict {
	if host == "" {
		return Deny
	}
	if cfg.ForbiddenHosts != nil && matchesAny(host, cfg.ForbiddenHosts, cfg.MatchMode) {
		return Deny
	}
	if cfg.AllowedHosts != nil {
		if matchesAny(host, cfg.AllowedHosts, cfg.MatchMode) {
			return Allow
		}
		return Deny
	}
	return Allow
}

// EvaluateURL resolves the host of rawURL and evaluates it. Targets without a
// resolvable host are denied.
func EvaluateURL(rawURL string, cfg Config) Verdict {
	host, ok := HostOf(rawURL)
	if !ok {
		return Deny
	}
	return Evaluate(host, cfg)
}

// HostOf returns the hostname of rawURL, without port or brackets.
func HostOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	return host, host != ""
}

func matchesAny(host string, entries []string, mode MatchMode) bool {
	for _, entry := range entries {
		if matches(host, entry, mode) {
			return true
		}
	}
	return false
}

func matches(host, entry string, mode MatchMode) bool {
	if mode != MatchDomain {
		return strings.Contains(host, entry)
	}

	// Same rule the scope manager used: exact name or a dot-separated subdomain,
	// so "notexample.com" never matches "example.com".
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	entry = strings.TrimPrefix(strings.ToLower(entry), ".")
	if entry == "" {
		return false
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}
