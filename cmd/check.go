// File: cmd/check.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webgate/internal/policy"
)

// newCheckCmd evaluates URLs against the policy without opening a browser.
func newCheckCmd() *cobra.Command {
	var pf policyFlags

	checkCmd := &cobra.Command{
		Use:   "check <url>...",
		Short: "Print the policy verdict for each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			pcfg, err := pf.resolve(cmd, &cfg.Policy)
			if err != nil {
				return fmt.Errorf("invalid policy: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERDICT\tHOST\tURL")
			for _, raw := range args {
				host, ok := policy.HostOf(raw)
				if !ok {
					host = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", policy.EvaluateURL(raw, pcfg), host, raw)
			}
			return w.Flush()
		},
	}

	pf.register(checkCmd)
	return checkCmd
}
