// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package commands implements the lakectl command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	StackPath   string
	Region      string
	Account     string
	MetricsAddr string

	// NewClient builds the control plane client; replaced in tests.
	NewClient func(ctx context.Context, cfg *config.Config) (*client.Client, error)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit string) error {
	return NewRootCommand(version, commit, &RootOptions{NewClient: client.NewClient}).ExecuteContext(ctx)
}

// NewRootCommand creates the lakectl command tree.
func NewRootCommand(version, commit string, opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lakectl",
		Short: "Provision Amazon Security Lake stacks",
		Long: `lakectl converges a Security Lake stack without a formae agent.

A stack is one data lake, the native log sources attached to it in order,
and the subscribers granted access to it. Sources and subscribers are only
attached once the lake reports ready.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.StackPath, "stack", "f", "stack.yaml", "stack file path")
	cmd.PersistentFlags().StringVar(&opts.Region, "region", "", "target region (defaults to the stack, then AWS_REGION)")
	cmd.PersistentFlags().StringVar(&opts.Account, "account", "", "target account (resolved through STS when empty)")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newApplyCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newDestroyCommand(opts))

	return cmd
}

// target resolves configuration for a stack: flags win over the stack file,
// which wins over the environment.
func (o *RootOptions) target(ctx context.Context, s *stack.Stack) (*client.Client, error) {
	base := config.Config{Settings: config.DefaultSettings()}
	if s != nil {
		base = *s.Target(&base)
	}
	if o.Region != "" {
		base.Region = o.Region
	}
	if o.Account != "" {
		base.Account = o.Account
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromTargetConfig(raw)
	if err != nil {
		return nil, err
	}

	newClient := o.NewClient
	if newClient == nil {
		newClient = client.NewClient
	}
	return newClient(ctx, cfg)
}
