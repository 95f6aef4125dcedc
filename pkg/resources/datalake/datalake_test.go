// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datalake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/testutil"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

const (
	testAccount = "123456789012"
	testRegion  = "ap-southeast-2"
	testRole    = "arn:aws:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager"
)

func newTestDataLake(t *testing.T) (*DataLake, *testutil.FakeControlPlane) {
	t.Helper()
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	cfg := &config.Config{
		Region:                  testRegion,
		Account:                 testAccount,
		MetaStoreManagerRoleArn: testRole,
		Settings:                config.DefaultSettings(),
	}
	d := New(client.New(cfg, fake))
	d.opts.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return d, fake
}

func lakeProperties(t *testing.T, props map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(props)
	require.NoError(t, err)
	return data
}

func TestDataLake_Registered(t *testing.T) {
	assert.True(t, registry.HasProvisioner(ResourceTypeDataLake))
	assert.True(t, registry.Supports(ResourceTypeDataLake, resource.OperationCheckStatus))
	assert.True(t, Schema.Hints["region"].CreateOnly)
}

func TestDataLake_CreateThenStatus(t *testing.T) {
	d, fake := newTestDataLake(t)
	ctx := context.Background()
	fake.ScriptCreateStatus(testRegion, sltransport.StatusPending, sltransport.StatusPending, sltransport.StatusCompleted)

	result, err := d.Create(ctx, &resource.CreateRequest{
		ResourceType: ResourceTypeDataLake,
		Label:        "lake",
		Properties: lakeProperties(t, map[string]any{
			"lifecycle": `{"expiration":{"days":1825},"transitions":[{"days":30,"storageClass":"INTELLIGENT_TIERING"},{"days":365,"storageClass":"GLACIER"}]}`,
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, result.ProgressResult)
	assert.Equal(t, resource.OperationStatusInProgress, result.ProgressResult.OperationStatus, result.ProgressResult.StatusMessage)
	assert.Equal(t, testAccount+"/"+testRegion, result.ProgressResult.NativeID)

	status, err := testutil.WaitForCreate(t, ctx, d, result, nil, ResourceTypeDataLake,
		testutil.NewPollConfig().ForCreate().WithCheckInterval(0).WithMaxAttempts(5).Build())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(status.ProgressResult.ResourceProperties, &got))
	assert.Equal(t, "arn:aws:securitylake:ap-southeast-2:123456789012:data-lake/default", got["arn"])
	assert.Equal(t, "amazon_security_lake_glue_db_ap_southeast_2", got["glueDatabase"])
	assert.Equal(t, testRole, got["metaStoreManagerRoleArn"])
	assert.Len(t, fake.CallsTo("CreateDataLake"), 1)
	assert.Len(t, fake.CallsTo("ListDataLakes"), 3, "the ready check's describe is reused for the properties")
}

func TestDataLake_CreateRejectsInvalidProperties(t *testing.T) {
	d, fake := newTestDataLake(t)

	result, err := d.Create(context.Background(), &resource.CreateRequest{
		ResourceType: ResourceTypeDataLake,
		Properties: lakeProperties(t, map[string]any{
			"lifecycle": map[string]any{
				"transitions": []map[string]any{{"days": 30, "storageClass": "TAPE"}},
			},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusFailure, result.ProgressResult.OperationStatus)
	assert.Equal(t, resource.OperationErrorCodeInvalidRequest, result.ProgressResult.ErrorCode)
	assert.Empty(t, fake.CallsTo("CreateDataLake"), "invalid properties must not reach the control plane")
}

func TestDataLake_CreateRetriesThrottling(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.FailNext("CreateDataLake", testutil.Throttled(), testutil.Throttled())

	result, err := d.Create(context.Background(), &resource.CreateRequest{ResourceType: ResourceTypeDataLake})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusInProgress, result.ProgressResult.OperationStatus)
	assert.Len(t, fake.CallsTo("CreateDataLake"), 3)
}

func TestDataLake_CreateConflict(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.SeedLake(testRegion)

	result, err := d.Create(context.Background(), &resource.CreateRequest{ResourceType: ResourceTypeDataLake})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusFailure, result.ProgressResult.OperationStatus)
	assert.Len(t, fake.CallsTo("CreateDataLake"), 1, "permanent errors are not retried")
}

func TestDataLake_StatusReportsUpdateFailure(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.SeedLake(testRegion)
	fake.ScriptUpdateStatus(testRegion, "KMS key not accessible", sltransport.StatusPending, sltransport.StatusFailed)
	nativeID := testAccount + "/" + testRegion

	update, err := d.Update(context.Background(), &resource.UpdateRequest{
		NativeID:          nativeID,
		DesiredProperties: lakeProperties(t, map[string]any{"encryptionKeyId": "alias/lake"}),
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusInProgress, update.ProgressResult.OperationStatus)

	first, err := d.Status(context.Background(), &resource.StatusRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusInProgress, first.ProgressResult.OperationStatus)

	second, err := d.Status(context.Background(), &resource.StatusRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusFailure, second.ProgressResult.OperationStatus)
	assert.Contains(t, second.ProgressResult.StatusMessage, "KMS key not accessible")

	_, exists := fake.Lake(testRegion)
	assert.True(t, exists, "a failed update must not remove the lake")
	assert.Empty(t, fake.CallsTo("DeleteDataLake"))
}

func TestDataLake_UpdateRejectsRegionChange(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.SeedLake(testRegion)

	result, err := d.Update(context.Background(), &resource.UpdateRequest{
		NativeID:          testAccount + "/" + testRegion,
		DesiredProperties: lakeProperties(t, map[string]any{"region": "us-east-1"}),
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusFailure, result.ProgressResult.OperationStatus)
	assert.Equal(t, resource.OperationErrorCodeInvalidRequest, result.ProgressResult.ErrorCode)
	assert.Empty(t, fake.CallsTo("UpdateDataLake"))
}

func TestDataLake_DeleteIsFireAndForget(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.SeedLake(testRegion)
	nativeID := testAccount + "/" + testRegion

	result, err := d.Delete(context.Background(), &resource.DeleteRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, result.ProgressResult.OperationStatus)
	assert.Empty(t, fake.CallsTo("ListDataLakes"), "delete must not poll")

	again, err := d.Delete(context.Background(), &resource.DeleteRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, again.ProgressResult.OperationStatus, "a missing lake is already deleted")
}

func TestDataLake_ReadAndList(t *testing.T) {
	d, fake := newTestDataLake(t)
	fake.SeedLake(testRegion)
	fake.SeedLake("us-east-1")

	read, err := d.Read(context.Background(), &resource.ReadRequest{NativeID: testAccount + "/" + testRegion})
	require.NoError(t, err)
	var props map[string]any
	require.NoError(t, json.Unmarshal([]byte(read.Properties), &props))
	assert.Equal(t, testRegion, props["region"])
	assert.Equal(t, testAccount, props["account"])

	missing, err := d.Read(context.Background(), &resource.ReadRequest{NativeID: testAccount + "/eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotFound, missing.ErrorCode)

	list, err := d.List(context.Background(), &resource.ListRequest{ResourceType: ResourceTypeDataLake})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testAccount + "/ap-southeast-2", testAccount + "/us-east-1"}, list.NativeIDs)
}

func TestPoller_Evaluate(t *testing.T) {
	tests := []struct {
		name  string
		lake  sltransport.DataLake
		state provisioning.CheckState
	}{
		{"initialized", sltransport.DataLake{CreateStatus: sltransport.StatusInitialized}, provisioning.CheckPending},
		{"pending", sltransport.DataLake{CreateStatus: sltransport.StatusPending}, provisioning.CheckPending},
		{"completed", sltransport.DataLake{CreateStatus: sltransport.StatusCompleted}, provisioning.CheckReady},
		{"create failed", sltransport.DataLake{CreateStatus: sltransport.StatusFailed}, provisioning.CheckFailed},
		{"updating", sltransport.DataLake{CreateStatus: sltransport.StatusCompleted, UpdateStatus: sltransport.StatusInitialized}, provisioning.CheckPending},
		{"update completed", sltransport.DataLake{CreateStatus: sltransport.StatusCompleted, UpdateStatus: sltransport.StatusCompleted}, provisioning.CheckReady},
		{"update failed", sltransport.DataLake{CreateStatus: sltransport.StatusCompleted, UpdateStatus: sltransport.StatusFailed}, provisioning.CheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, evaluate(tt.lake).State)
		})
	}
}

func TestPoller_MissingLakeIsPending(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	check, err := NewPoller(fake).Check(context.Background(), testAccount+"/"+testRegion)
	require.NoError(t, err)
	assert.Equal(t, provisioning.CheckPending, check.State)
}

func TestOrchestrator_ConvergesDataLake(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	fake.ScriptCreateStatus(testRegion, sltransport.StatusInitialized, sltransport.StatusPending, sltransport.StatusCompleted)
	clock := testutil.NewFakeClock()

	o := provisioning.NewOrchestrator(NewHandler(fake), NewPoller(fake), provisioning.Options{
		TotalTimeout:  time.Hour,
		PollInterval:  30 * time.Second,
		RetryAttempts: 3,
		Clock:         clock,
		NewBackOff:    func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})

	res, err := o.Converge(context.Background(), provisioning.Request{
		LogicalID: "lake",
		Action:    provisioning.ActionCreate,
		Properties: lake.Properties{
			Account:                 testAccount,
			Region:                  testRegion,
			MetaStoreManagerRoleArn: testRole,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, provisioning.StatusReady, res.Status)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, time.Minute, clock.Elapsed())

	ref, err := o.Resolved("lake").Reference()
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:securitylake:ap-southeast-2:123456789012:data-lake/default", ref)
	assert.Equal(t, testRegion, res.Attributes[provisioning.AttrRegion])
}
