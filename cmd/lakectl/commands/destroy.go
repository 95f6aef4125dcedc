// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
)

func newDestroyCommand(opts *RootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove the stack's subscribers, sources and data lake",
		Long: `Remove the subscribers and log sources named in the stack, then request
deletion of the data lake. Lake deletion is not awaited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("destroy deletes the data lake; pass --yes to confirm")
			}
			s, err := stack.Load(opts.StackPath)
			if err != nil {
				return err
			}
			d, stop, err := opts.deployer(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer stop()

			if err := d.Destroy(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deletion of %s requested\n", s.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}
