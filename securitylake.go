// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platform-engineering-labs/formae/pkg/plugin"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/datalake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/prov"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"

	// Import resources to trigger init() registration
	_ "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/logsource"
	_ "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/subscriber"
)

// ClientFactory builds a Security Lake client for a resolved target config.
type ClientFactory func(ctx context.Context, cfg *config.Config) (*client.Client, error)

// Plugin implements the Formae ResourcePlugin interface.
// The SDK automatically provides identity methods (Name, Version, Namespace)
// and schema methods (SupportedResources, SchemaForResourceType) by reading
// formae-plugin.pkl and schema/pkl/ at startup.
type Plugin struct {
	// NewClient defaults to client.NewClient.
	NewClient ClientFactory
}

// Compile-time check: Plugin must satisfy ResourcePlugin interface.
var _ plugin.ResourcePlugin = &Plugin{}

// RateLimit returns the rate limit configuration for this plugin
func (p *Plugin) RateLimit() plugin.RateLimitConfig {
	return plugin.RateLimitConfig{
		Scope:                            plugin.RateLimitScopeNamespace,
		MaxRequestsPerSecondForNamespace: 5, // Security Lake control plane throttles early
	}
}

// DiscoveryFilters returns declarative filters for discovery.
// Security Lake doesn't need any special filters currently.
func (p *Plugin) DiscoveryFilters() []plugin.MatchFilter {
	return nil
}

// LabelConfig returns the label extraction configuration for discovered resources.
func (p *Plugin) LabelConfig() plugin.LabelConfig {
	return plugin.LabelConfig{
		DefaultQuery: "$.subscriberName",
		ResourceOverrides: map[string]string{
			// One lake per region
			datalake.ResourceTypeDataLake: "$.region",
		},
	}
}

// provisioner resolves the target config, builds the client and returns the
// provisioner registered for resourceType.
func (p *Plugin) provisioner(ctx context.Context, targetConfig json.RawMessage, resourceType string) (prov.Provisioner, error) {
	// Check if resource type is supported
	if !registry.HasProvisioner(resourceType) {
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	// Extract config from target
	cfg, err := config.FromTargetConfig(targetConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to extract config from target: %w", err)
	}

	newClient := p.NewClient
	if newClient == nil {
		newClient = client.NewClient
	}
	c, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Security Lake client: %w", err)
	}

	return registry.Get(resourceType, c), nil
}

func (p *Plugin) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.Create(ctx, request)
}

func (p *Plugin) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.Read(ctx, request)
}

func (p *Plugin) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.Update(ctx, request)
}

func (p *Plugin) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.Delete(ctx, request)
}

func (p *Plugin) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.Status(ctx, request)
}

func (p *Plugin) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	provisioner, err := p.provisioner(ctx, request.TargetConfig, request.ResourceType)
	if err != nil {
		return nil, err
	}
	return provisioner.List(ctx, request)
}
