// File: cmd/policy_flags.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webgate/internal/config"
	"github.com/xkilldash9x/webgate/internal/policy"
)

// policyFlags override the policy section of the config file. A list flag
// only replaces the configured list when given, since an empty list and an
// absent list mean different things to the policy.
type policyFlags struct {
	allow     []string
	forbid    []string
	matchMode string
	noAllow   bool
}

func (f *policyFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.allow, "allow-host", nil, "only allow hosts matching these entries (repeatable)")
	flags.StringSliceVar(&f.forbid, "forbid-host", nil, "deny hosts matching these entries (repeatable)")
	flags.StringVar(&f.matchMode, "match-mode", "", "host matching: substring or domain")
	flags.BoolVar(&f.noAllow, "deny-all", false, "configure an empty allow list, denying every host")
}

func (f *policyFlags) apply(cmd *cobra.Command, p *config.PolicyConfig) {
	flags := cmd.Flags()
	switch {
	case flags.Changed("allow-host"):
		p.AllowedHosts = append([]string{}, f.allow...)
	case f.noAllow:
		p.AllowedHosts = []string{}
	}
	if flags.Changed("forbid-host") {
		p.ForbiddenHosts = append([]string{}, f.forbid...)
	}
	if f.matchMode != "" {
		p.MatchMode = f.matchMode
	}
}

// resolve applies the flags and returns the validated engine config.
func (f *policyFlags) resolve(cmd *cobra.Command, p *config.PolicyConfig) (policy.Config, error) {
	f.apply(cmd, p)
	if err := p.Validate(); err != nil {
		return policy.Config{}, err
	}
	return p.Policy(), nil
}
