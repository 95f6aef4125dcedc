// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
	fakes "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/testutil"
)

const (
	testAccount = "123456789012"
	testRegion  = "ap-southeast-2"
	lakeArn     = "arn:aws:securitylake:ap-southeast-2:123456789012:data-lake/default"
)

func binding(principal, externalID string) Binding {
	return Binding{
		Name:        "analyst-" + principal,
		Principal:   lake.Principal{Account: principal, ExternalID: externalID},
		AccessTypes: []lake.AccessType{lake.AccessLakeFormation},
		Sources:     []lake.LogSourceSpec{{Kind: lake.SourceVPCFlow}, {Kind: lake.SourceRoute53}},
	}
}

func TestRegister_IndependentPrincipals(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	r := NewRegistrar(fake, nil, "")
	ctx := context.Background()

	first, err := r.Register(ctx, lakeArn, binding("111122223333", "ext-one"))
	require.NoError(t, err)
	second, err := r.Register(ctx, lakeArn, binding("444455556666", "ext-two"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ShareReference)
	assert.NotEmpty(t, second.ShareReference)
	assert.NotEqual(t, first.ShareReference, second.ShareReference)
	assert.NotEqual(t, first.SubscriberID, second.SubscriberID)
	assert.Equal(t, testRegion, first.Region)
	assert.Len(t, fake.CallsTo("CreateSubscriber"), 2)
}

func TestRegister_ForwardsExternalIDUnchanged(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	r := NewRegistrar(fake, nil, "")
	secret := "  not/a valid:anything  "

	reg, err := r.Register(context.Background(), lakeArn, binding("111122223333", secret))
	require.NoError(t, err)

	in, ok := fake.SubscriberInput(reg.SubscriberID)
	require.True(t, ok)
	assert.Equal(t, secret, in.ExternalID)
	assert.Equal(t, "2.0", in.Sources[0].SourceVersion)
}

func TestRegister_S3AccessFallsBackToSubscriberArn(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	r := NewRegistrar(fake, nil, "")
	b := binding("111122223333", "ext")
	b.AccessTypes = []lake.AccessType{lake.AccessS3}

	reg, err := r.Register(context.Background(), lakeArn, b)
	require.NoError(t, err)
	assert.Equal(t, reg.SubscriberArn, reg.ShareReference)
}

func TestRegister_RequiresResolvedParent(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	r := NewRegistrar(fake, nil, "")

	_, err := r.Register(context.Background(), "", binding("111122223333", "ext"))
	require.Error(t, err)
	var regErr *provisioning.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.ErrorIs(t, err, provisioning.ErrNotResolved)

	_, err = r.Register(context.Background(), "arn:aws:s3:::some-bucket", binding("111122223333", "ext"))
	require.Error(t, err)
	assert.Empty(t, fake.Calls(), "no call is made without a resolved data lake")
}

func TestRegister_FailureNotRetried(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	metrics := provisioning.NewMetrics("test")
	r := NewRegistrar(fake, metrics, "")
	fake.FailNext("CreateSubscriber", fakes.Throttled())

	_, err := r.Register(context.Background(), lakeArn, binding("111122223333", "ext"))
	require.Error(t, err)

	var regErr *provisioning.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "111122223333", regErr.Principal)
	assert.True(t, provisioning.IsTransient(err))
	assert.Len(t, fake.CallsTo("CreateSubscriber"), 1)

	count, err := testutil.GatherAndCount(metrics.Registry(), "test_subscriber_registrations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegister_RejectsInvalidBinding(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	r := NewRegistrar(fake, nil, "")

	tests := []struct {
		name   string
		mutate func(*Binding)
	}{
		{"no name", func(b *Binding) { b.Name = "" }},
		{"bad principal", func(b *Binding) { b.Principal.Account = "abc" }},
		{"no access types", func(b *Binding) { b.AccessTypes = nil }},
		{"no sources", func(b *Binding) { b.Sources = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := binding("111122223333", "ext")
			tt.mutate(&b)
			_, err := r.Register(context.Background(), lakeArn, b)
			require.Error(t, err)
			assert.False(t, provisioning.IsTransient(err))
		})
	}
	assert.Empty(t, fake.CallsTo("CreateSubscriber"))
}

func TestSubscriber_Lifecycle(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	cfg := &config.Config{Region: testRegion, Account: testAccount, Settings: config.DefaultSettings()}
	s := New(client.New(cfg, fake))
	ctx := context.Background()
	assert.True(t, registry.HasProvisioner(ResourceTypeSubscriber))

	props, err := json.Marshal(map[string]any{
		"subscriberName": "AIanalyst",
		"principal":      "111122223333",
		"externalId":     "ext",
		"accessTypes":    []string{"LAKEFORMATION"},
		"sources":        []map[string]string{{"sourceName": "VPC_FLOW"}},
		"dataLakeArn":    lakeArn,
	})
	require.NoError(t, err)

	created, err := s.Create(ctx, &resource.CreateRequest{ResourceType: ResourceTypeSubscriber, Properties: props})
	require.NoError(t, err)
	require.Equal(t, resource.OperationStatusSuccess, created.ProgressResult.OperationStatus, created.ProgressResult.StatusMessage)
	nativeID := created.ProgressResult.NativeID
	assert.Equal(t, "123456789012/ap-southeast-2/sub-0001", nativeID)

	var out Properties
	require.NoError(t, json.Unmarshal(created.ProgressResult.ResourceProperties, &out))
	assert.Contains(t, out.ResourceShareArn, "resource-share/sub-0001")

	status, err := s.Status(ctx, &resource.StatusRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, status.ProgressResult.OperationStatus)

	read, err := s.Read(ctx, &resource.ReadRequest{NativeID: nativeID})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(read.Properties), &out))
	assert.Equal(t, "AIanalyst", out.Name)

	list, err := s.List(ctx, &resource.ListRequest{ResourceType: ResourceTypeSubscriber})
	require.NoError(t, err)
	assert.Equal(t, []string{nativeID}, list.NativeIDs)

	update, err := s.Update(ctx, &resource.UpdateRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotUpdatable, update.ProgressResult.ErrorCode)

	deleted, err := s.Delete(ctx, &resource.DeleteRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, deleted.ProgressResult.OperationStatus)

	gone, err := s.Read(ctx, &resource.ReadRequest{NativeID: nativeID})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotFound, gone.ErrorCode)
}

func TestSubscriber_CreateWithoutParent(t *testing.T) {
	fake := fakes.NewFakeControlPlane(testAccount, testRegion)
	cfg := &config.Config{Region: testRegion, Account: testAccount, Settings: config.DefaultSettings()}
	s := New(client.New(cfg, fake))

	created, err := s.Create(context.Background(), &resource.CreateRequest{
		ResourceType: ResourceTypeSubscriber,
		Properties:   json.RawMessage(`{"subscriberName":"x","principal":"111122223333","accessTypes":["S3"],"sources":[{"sourceName":"WAF"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusFailure, created.ProgressResult.OperationStatus)
	assert.Contains(t, created.ProgressResult.StatusMessage, provisioning.ErrNotResolved.Error())
}
