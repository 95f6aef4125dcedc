// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/datalake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/logsource"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/subscriber"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/testutil"
)

var targetConfig = json.RawMessage(`{
	"region": "ap-southeast-2",
	"account": "123456789012",
	"metaStoreManagerRoleArn": "arn:aws:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager",
	"settings": {"totalTimeout": "1m", "pollInterval": "1s", "retryAttempts": 1, "defaultSourceVersion": "2.0"}
}`)

func newTestPlugin(t *testing.T) (*Plugin, *testutil.FakeControlPlane) {
	t.Helper()
	fake := testutil.NewFakeControlPlane("123456789012", "ap-southeast-2")
	return &Plugin{
		NewClient: func(_ context.Context, cfg *config.Config) (*client.Client, error) {
			return client.New(cfg, fake), nil
		},
	}, fake
}

func TestPlugin_RegistersAllResourceTypes(t *testing.T) {
	assert.ElementsMatch(t, []string{
		datalake.ResourceTypeDataLake,
		logsource.ResourceTypeAwsLogSources,
		subscriber.ResourceTypeSubscriber,
	}, registry.ResourceTypes())
}

func TestPlugin_UnsupportedResourceType(t *testing.T) {
	p, fake := newTestPlugin(t)

	_, err := p.Create(context.Background(), &resource.CreateRequest{
		ResourceType: "SecurityLake::Lake::Unknown",
		TargetConfig: targetConfig,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported resource type")
	assert.Empty(t, fake.Calls())
}

func TestPlugin_InvalidTargetConfig(t *testing.T) {
	p, _ := newTestPlugin(t)

	_, err := p.Read(context.Background(), &resource.ReadRequest{
		ResourceType: datalake.ResourceTypeDataLake,
		NativeID:     "123456789012/ap-southeast-2",
		TargetConfig: json.RawMessage(`{"region": "ap-southeast-2", "settings": {"retryAttempts": 0}}`),
	})
	assert.Error(t, err)
}

func TestPlugin_ClientFactoryError(t *testing.T) {
	p := &Plugin{NewClient: func(context.Context, *config.Config) (*client.Client, error) {
		return nil, errors.New("no credentials")
	}}

	_, err := p.List(context.Background(), &resource.ListRequest{
		ResourceType: subscriber.ResourceTypeSubscriber,
		TargetConfig: targetConfig,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestPlugin_DataLakeRoundTrip(t *testing.T) {
	p, fake := newTestPlugin(t)
	ctx := context.Background()

	created, err := p.Create(ctx, &resource.CreateRequest{
		ResourceType: datalake.ResourceTypeDataLake,
		Properties:   json.RawMessage(`{"lifecycle": {"expiration": {"days": 1825}}}`),
		TargetConfig: targetConfig,
	})
	require.NoError(t, err)
	require.Equal(t, resource.OperationStatusInProgress, created.ProgressResult.OperationStatus, created.ProgressResult.StatusMessage)

	status, err := p.Status(ctx, &resource.StatusRequest{
		ResourceType: datalake.ResourceTypeDataLake,
		RequestID:    created.ProgressResult.RequestID,
		NativeID:     created.ProgressResult.NativeID,
		TargetConfig: targetConfig,
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, status.ProgressResult.OperationStatus)

	list, err := p.List(ctx, &resource.ListRequest{
		ResourceType: datalake.ResourceTypeDataLake,
		TargetConfig: targetConfig,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{created.ProgressResult.NativeID}, list.NativeIDs)

	deleted, err := p.Delete(ctx, &resource.DeleteRequest{
		ResourceType: datalake.ResourceTypeDataLake,
		NativeID:     created.ProgressResult.NativeID,
		TargetConfig: targetConfig,
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, deleted.ProgressResult.OperationStatus)
	assert.Len(t, fake.CallsTo("DeleteDataLake"), 1)
}
