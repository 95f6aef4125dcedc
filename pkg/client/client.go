// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// Client bundles the resolved configuration with the Security Lake control plane
type Client struct {
	Config *config.Config

	// ControlPlane performs the Security Lake API calls
	ControlPlane sltransport.ControlPlane
}

// New creates a client around an existing control plane (fakes in tests).
func New(cfg *config.Config, plane sltransport.ControlPlane) *Client {
	return &Client{Config: cfg, ControlPlane: plane}
}

// NewClient creates a Security Lake client from the AWS default credential chain.
// When AssumeRole is set the execution role is assumed first. An empty account
// is resolved through STS so the execution role can be derived.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Account == "" {
		identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
		cfg.Account = aws.ToString(identity.Account)
	}

	if cfg.AssumeRole {
		roleArn := cfg.ExecutionRoleArn()
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), roleArn,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = "formae-securitylake"
				if cfg.RoleExternalID != "" {
					o.ExternalID = aws.String(cfg.RoleExternalID)
				}
			})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return New(cfg, sltransport.NewClient(awsCfg, cfg.Endpoint)), nil
}
