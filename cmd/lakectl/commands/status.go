// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
)

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deployed lake, sources and subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The stack file is optional here; it only narrows the target.
			var s *stack.Stack
			if _, err := os.Stat(opts.StackPath); err == nil {
				if s, err = stack.Load(opts.StackPath); err != nil {
					return err
				}
			}

			d, stop, err := opts.deployer(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer stop()

			report, err := d.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data lake: %s\n", report.Lake.State)
			if arn := report.Lake.Attributes.Reference(); arn != "" {
				fmt.Fprintf(out, "  arn: %s\n", arn)
			}
			if report.Lake.Reason != "" {
				fmt.Fprintf(out, "  reason: %s\n", report.Lake.Reason)
			}
			fmt.Fprintf(out, "Log sources: %d\n", len(report.Sources))
			for _, id := range report.Sources {
				fmt.Fprintf(out, "  - %s\n", id)
			}
			fmt.Fprintf(out, "Subscribers: %d\n", len(report.Subscribers))
			for _, sub := range report.Subscribers {
				fmt.Fprintf(out, "  - %s %s (%s) %s\n", sub.ID, sub.Name, sub.Principal, sub.Status)
			}
			return nil
		},
	}
}
