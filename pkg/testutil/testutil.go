// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
	"github.com/stretchr/testify/require"
)

var (
	// AWS configuration for integration tests - read from environment variables.
	// Credentials come from the default chain (AWS_ACCESS_KEY_ID, AWS_PROFILE, ...).
	Region    = getEnvOrDefault("AWS_REGION", "us-east-1")
	AccountID = os.Getenv("SECURITYLAKE_ACCOUNT_ID")

	// MetaStoreManagerRoleArn must exist before a data lake can be created
	MetaStoreManagerRoleArn = os.Getenv("SECURITYLAKE_TEST_METASTORE_ROLE_ARN")

	// SubscriberPrincipal is the account granted access in subscriber tests
	SubscriberPrincipal  = os.Getenv("SECURITYLAKE_TEST_SUBSCRIBER_PRINCIPAL")
	SubscriberExternalID = getEnvOrDefault("SECURITYLAKE_TEST_SUBSCRIBER_EXTERNAL_ID", "formae-integration")
)

// getEnvOrDefault returns the environment variable value or the default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsAWSConfigured returns true if the integration test environment is set
func IsAWSConfigured() bool {
	return AccountID != "" && MetaStoreManagerRoleArn != "" &&
		(os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "")
}

// SkipIfAWSNotConfigured skips the test if the integration environment is not set
func SkipIfAWSNotConfigured(t interface{ Skip(...any) }) {
	if !IsAWSConfigured() {
		t.Skip("Skipping test: AWS not configured. Set SECURITYLAKE_ACCOUNT_ID, SECURITYLAKE_TEST_METASTORE_ROLE_ARN and AWS credentials.")
	}
}

// TargetConfig returns a target config JSON for the integration environment
func TargetConfig() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"region":                  Region,
		"account":                 AccountID,
		"metaStoreManagerRoleArn": MetaStoreManagerRoleArn,
	})
	return data
}

// StatusChecker defines the interface for checking operation status
type StatusChecker interface {
	Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error)
}

// PollConfig configures the polling behavior
type PollConfig struct {
	MaxAttempts   int
	CheckInterval time.Duration
	ResourceType  string
	OperationName string // "Create", "Delete", "Update" for better logging
}

// DefaultPollConfig returns defaults sized for data lake creation
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts:   120,
		CheckInterval: 30 * time.Second,
		OperationName: "Operation",
	}
}

// PollConfigBuilder provides a fluent API for building PollConfig
type PollConfigBuilder struct {
	config PollConfig
}

// NewPollConfig creates a new PollConfigBuilder with defaults
func NewPollConfig() *PollConfigBuilder {
	return &PollConfigBuilder{
		config: DefaultPollConfig(),
	}
}

// WithMaxAttempts sets the maximum number of polling attempts
func (b *PollConfigBuilder) WithMaxAttempts(attempts int) *PollConfigBuilder {
	b.config.MaxAttempts = attempts
	return b
}

// WithCheckInterval sets the interval between polling attempts
func (b *PollConfigBuilder) WithCheckInterval(interval time.Duration) *PollConfigBuilder {
	b.config.CheckInterval = interval
	return b
}

// WithResourceType sets the resource type
func (b *PollConfigBuilder) WithResourceType(resourceType string) *PollConfigBuilder {
	b.config.ResourceType = resourceType
	return b
}

// ForCreate configures for a create operation
func (b *PollConfigBuilder) ForCreate() *PollConfigBuilder {
	b.config.OperationName = "Create"
	return b
}

// ForUpdate configures for an update operation
func (b *PollConfigBuilder) ForUpdate() *PollConfigBuilder {
	b.config.OperationName = "Update"
	return b
}

// Build returns the final PollConfig
func (b *PollConfigBuilder) Build() PollConfig {
	return b.config
}

// PollUntilComplete polls the status until the operation completes or the
// attempts run out. A zero CheckInterval polls back to back (fakes).
func PollUntilComplete(
	t *testing.T,
	ctx context.Context,
	checker StatusChecker,
	nativeID string,
	targetConfig json.RawMessage,
	config PollConfig,
) (*resource.StatusResult, error) {
	t.Helper()

	if config.MaxAttempts == 0 {
		config.MaxAttempts = 30
	}

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if config.CheckInterval > 0 {
			time.Sleep(config.CheckInterval)
		}

		statusResult, err := checker.Status(ctx, &resource.StatusRequest{
			NativeID:     nativeID,
			ResourceType: config.ResourceType,
			TargetConfig: targetConfig,
		})
		require.NoError(t, err, "%s status check should not return error", config.OperationName)
		require.NotNil(t, statusResult, "%s status result should not be nil", config.OperationName)
		require.NotNil(t, statusResult.ProgressResult, "%s progress result should not be nil", config.OperationName)

		t.Logf("%s status check attempt %d/%d: %s (status: %s)",
			config.OperationName,
			attempt+1,
			config.MaxAttempts,
			statusResult.ProgressResult.StatusMessage,
			statusResult.ProgressResult.OperationStatus)

		switch statusResult.ProgressResult.OperationStatus {
		case resource.OperationStatusSuccess:
			return statusResult, nil
		case resource.OperationStatusFailure:
			return statusResult, fmt.Errorf("%s operation failed: %s (error code: %s)",
				config.OperationName,
				statusResult.ProgressResult.StatusMessage,
				statusResult.ProgressResult.ErrorCode)
		}
	}

	return nil, fmt.Errorf("%s operation timed out after %d attempts", config.OperationName, config.MaxAttempts)
}

// WaitForCreate is a convenience wrapper for Create operations
func WaitForCreate(
	t *testing.T,
	ctx context.Context,
	checker StatusChecker,
	createResult *resource.CreateResult,
	targetConfig json.RawMessage,
	resourceType string,
	pollConfig PollConfig,
) (*resource.StatusResult, error) {
	t.Helper()

	if pollConfig.ResourceType == "" {
		pollConfig.ResourceType = resourceType
	}
	if pollConfig.OperationName == "" {
		pollConfig.OperationName = "Create"
	}
	return PollUntilComplete(t, ctx, checker, createResult.ProgressResult.NativeID, targetConfig, pollConfig)
}
