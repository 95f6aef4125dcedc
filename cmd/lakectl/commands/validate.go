// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

func newValidateCommand(opts *RootOptions) *cobra.Command {
	var showIAM bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the stack file without contacting AWS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := stack.Load(opts.StackPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid\n", opts.StackPath)
			fmt.Fprintf(out, "  sources:     %d\n", len(s.Sources))
			for _, src := range s.Sources {
				fmt.Fprintf(out, "    - %s\n", src.WithDefaultVersion(lake.DefaultSourceVersion).Identity())
			}
			fmt.Fprintf(out, "  subscribers: %d\n", len(s.Subscribers))
			for _, sub := range s.Subscribers {
				fmt.Fprintf(out, "    - %s (%s)\n", sub.Name, sub.Principal)
			}
			if showIAM {
				fmt.Fprintln(out, "  required IAM actions:")
				for _, action := range sltransport.AllRequiredActions() {
					fmt.Fprintf(out, "    - %s\n", action)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showIAM, "iam", false, "List the IAM actions the stack needs")
	return cmd
}
