// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/logsource"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/testutil"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

const (
	testAccount = "123456789012"
	testRegion  = "ap-southeast-2"
	analyst     = "111122223333"
)

func newTestDeployer(t *testing.T, fake *testutil.FakeControlPlane) *Deployer {
	t.Helper()
	cfg := &config.Config{Region: testRegion, Account: testAccount, Settings: config.DefaultSettings()}
	return New(fake, cfg, provisioning.Options{
		TotalTimeout:  60 * time.Minute,
		PollInterval:  30 * time.Second,
		RetryAttempts: 3,
		Clock:         testutil.NewFakeClock(),
		Metrics:       provisioning.NewMetrics("test"),
		NewBackOff:    func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func firstSeq(calls []testutil.Call) int {
	if len(calls) == 0 {
		return 0
	}
	return calls[0].Seq
}

func TestApply_DefaultStack(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	fake.ScriptCreateStatus(testRegion, sltransport.StatusPending, sltransport.StatusCompleted)
	d := newTestDeployer(t, fake)

	report, err := d.Apply(context.Background(), stack.Default(analyst, "ext"))
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, provisioning.StatusReady, report.Lake.Status)
	assert.Equal(t, 2, report.Lake.Polls)
	assert.Equal(t, []string{"VPC_FLOW:2.0", "ROUTE53:2.0", "SH_FINDINGS:2.0", "CLOUD_TRAIL_MGMT:2.0"}, report.Sources.Succeeded())

	require.Len(t, report.Subscribers, 1)
	sub := report.Subscribers[0]
	require.NoError(t, sub.Err)
	assert.False(t, sub.Existing)
	assert.Contains(t, sub.Registration.ShareReference, "resource-share/")

	// Nothing is attached before the lake is ready.
	readyAt := fake.CallsTo("ListDataLakes")
	lastPoll := readyAt[len(readyAt)-1].Seq
	assert.Greater(t, firstSeq(fake.CallsTo("CreateAwsLogSource")), lastPoll)
	assert.Greater(t, firstSeq(fake.CallsTo("CreateSubscriber")), lastPoll)
}

func TestApply_RerunIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	s := stack.Default(analyst, "ext")

	_, err := newTestDeployer(t, fake).Apply(context.Background(), s)
	require.NoError(t, err)

	report, err := newTestDeployer(t, fake).Apply(context.Background(), s)
	require.NoError(t, err)

	assert.Len(t, fake.CallsTo("CreateDataLake"), 1)
	assert.Len(t, fake.CallsTo("UpdateDataLake"), 1, "an existing lake is reconfigured")
	assert.Len(t, fake.CallsTo("CreateAwsLogSource"), 4)
	assert.Len(t, fake.CallsTo("CreateSubscriber"), 1)
	require.Len(t, report.Subscribers, 1)
	assert.True(t, report.Subscribers[0].Existing)
	for _, item := range report.Sources.Items {
		assert.Equal(t, logsource.OutcomeAlreadyAccepted, item.Outcome, item.Identity)
	}
}

func TestApply_LakeFailureAttachesNothing(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	fake.ScriptCreateStatus(testRegion, sltransport.StatusFailed)
	d := newTestDeployer(t, fake)

	report, err := d.Apply(context.Background(), stack.Default(analyst, "ext"))
	require.Error(t, err)

	assert.Equal(t, provisioning.StatusFailed, report.Lake.Status)
	assert.Empty(t, fake.CallsTo("CreateAwsLogSource"))
	assert.Empty(t, fake.CallsTo("CreateSubscriber"))
	_, published := d.Orchestrator().Resolved(LakeLogicalID).Get()
	assert.False(t, published)
}

func TestApply_SourceFailureIsReported(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	fake.Intercept = func(method string, in any) error {
		if method == "CreateAwsLogSource" && in.(sltransport.LogSourceInput).SourceName == "ROUTE53" {
			return testutil.Rejected("not available")
		}
		return nil
	}
	d := newTestDeployer(t, fake)

	report, err := d.Apply(context.Background(), stack.Default(analyst, "ext"))
	require.Error(t, err)

	var seqErr *provisioning.SequencingError
	assert.ErrorAs(t, err, &seqErr)
	assert.Len(t, report.Sources.Succeeded(), 3)
	require.Len(t, report.Subscribers, 1)
	assert.NoError(t, report.Subscribers[0].Err, "subscribers do not depend on the source chain")
}

func TestStatus(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	d := newTestDeployer(t, fake)
	_, err := d.Apply(context.Background(), stack.Default(analyst, "ext"))
	require.NoError(t, err)

	status, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, provisioning.CheckReady, status.Lake.State)
	assert.Equal(t, []string{"CLOUD_TRAIL_MGMT:2.0", "ROUTE53:2.0", "SH_FINDINGS:2.0", "VPC_FLOW:2.0"}, status.Sources)
	require.Len(t, status.Subscribers, 1)
	assert.Equal(t, "AIanalyst", status.Subscribers[0].Name)
}

func TestDestroy(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	s := stack.Default(analyst, "ext")
	_, err := newTestDeployer(t, fake).Apply(context.Background(), s)
	require.NoError(t, err)

	require.NoError(t, newTestDeployer(t, fake).Destroy(context.Background(), s))

	_, ok := fake.Lake(testRegion)
	assert.False(t, ok)
	assert.Len(t, fake.CallsTo("DeleteSubscriber"), 1)
	assert.Len(t, fake.CallsTo("DeleteAwsLogSource"), 4)
	assert.Greater(t, firstSeq(fake.CallsTo("DeleteDataLake")), firstSeq(fake.CallsTo("DeleteAwsLogSource")))
}

func TestDestroy_KeepsLakeWhenSubscriberRemovalFails(t *testing.T) {
	fake := testutil.NewFakeControlPlane(testAccount, testRegion)
	s := stack.Default(analyst, "ext")
	_, err := newTestDeployer(t, fake).Apply(context.Background(), s)
	require.NoError(t, err)

	fake.FailNext("DeleteSubscriber", sltransport.NewError(sltransport.ErrorCodeUnauthorized, "denied", nil))
	require.Error(t, newTestDeployer(t, fake).Destroy(context.Background(), s))

	_, ok := fake.Lake(testRegion)
	assert.True(t, ok)
	assert.Empty(t, fake.CallsTo("DeleteDataLake"))
}

func TestDefaultMetaStoreManagerRoleArn(t *testing.T) {
	assert.Equal(t, "arn:aws:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager",
		DefaultMetaStoreManagerRoleArn(&config.Config{Account: testAccount, Region: testRegion}))
	assert.Equal(t, "arn:aws-cn:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager",
		DefaultMetaStoreManagerRoleArn(&config.Config{Account: testAccount, Region: "cn-north-1"}))
}
