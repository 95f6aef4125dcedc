// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
)

func newInitCommand(opts *RootOptions) *cobra.Command {
	var (
		analystAccount string
		externalID     string
		force          bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the reference stack file",
		Long: `Write a stack file with the reference deployment: a data lake with a
five year retention, transitions to INTELLIGENT_TIERING after 30 days and
GLACIER after 365 days, the VPC_FLOW, ROUTE53, SH_FINDINGS and
CLOUD_TRAIL_MGMT sources, and one LakeFormation subscriber.`,
		Example: `  # Grant the analyst account access through LakeFormation
  lakectl init --analyst-account 111122223333 --external-id "$EXTERNAL_ID"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if externalID == "" {
				externalID = os.Getenv("SECURITYLAKE_SUBSCRIBER_EXTERNAL_ID")
			}

			s := stack.Default(analystAccount, externalID)
			s.Region = opts.Region
			s.Account = opts.Account
			if err := s.Validate(); err != nil {
				return err
			}

			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(opts.StackPath, flags, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create stack file: %w", err)
			}
			defer f.Close()

			if err := s.Encode(f); err != nil {
				return err
			}

			log.Ctx(cmd.Context()).Info().Str("path", opts.StackPath).Msg("Stack file written")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", opts.StackPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&analystAccount, "analyst-account", "", "account granted access to the lake")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external id of the subscriber (default $SECURITYLAKE_SUBSCRIBER_EXTERNAL_ID)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing stack file")
	_ = cmd.MarkFlagRequired("analyst-account")

	return cmd
}
