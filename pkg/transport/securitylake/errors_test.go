// pkg/transport/securitylake/errors_test.go
package securitylake

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		want       ErrorCode
	}{
		{400, ErrorCodeInvalidInput},
		{401, ErrorCodeUnauthorized},
		{403, ErrorCodeUnauthorized},
		{404, ErrorCodeResourceNotFound},
		{409, ErrorCodeConflict},
		{429, ErrorCodeThrottling},
		{500, ErrorCodeInternalError},
		{503, ErrorCodeInternalError},
		{200, ErrorCodeNone},
		{418, ErrorCodeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyHTTPStatus(tt.statusCode), "status %d", tt.statusCode)
	}
}

func TestClassifyAPICode(t *testing.T) {
	tests := []struct {
		apiCode string
		want    ErrorCode
	}{
		{"ValidationException", ErrorCodeInvalidInput},
		{"BadRequestException", ErrorCodeInvalidInput},
		{"AccessDeniedException", ErrorCodeUnauthorized},
		{"ResourceNotFoundException", ErrorCodeResourceNotFound},
		{"ConflictException", ErrorCodeConflict},
		{"ThrottlingException", ErrorCodeThrottling},
		{"InternalServerException", ErrorCodeInternalError},
		{"SomethingNew", ErrorCodeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyAPICode(tt.apiCode), tt.apiCode)
	}
}

func TestToResourceErrorCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want resource.OperationErrorCode
	}{
		{ErrorCodeInvalidInput, resource.OperationErrorCodeInvalidRequest},
		{ErrorCodeUnauthorized, resource.OperationErrorCodeAccessDenied},
		{ErrorCodeResourceNotFound, resource.OperationErrorCodeNotFound},
		{ErrorCodeAlreadyExists, resource.OperationErrorCodeAlreadyExists},
		{ErrorCodeConflict, resource.OperationErrorCodeAlreadyExists},
		{ErrorCodeThrottling, resource.OperationErrorCodeThrottling},
		{ErrorCodeInternalError, resource.OperationErrorCodeServiceInternalError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToResourceErrorCode(tt.code), string(tt.code))
	}
}

func TestClassifyError(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		api := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
		err := classifyError(fmt.Errorf("operation CreateDataLake: %w", api))

		var transportErr *Error
		require.True(t, errors.As(err, &transportErr))
		assert.Equal(t, ErrorCodeThrottling, transportErr.Code)
		assert.Equal(t, "ThrottlingException", transportErr.APICode)
		assert.Equal(t, "slow down", transportErr.Message)
		assert.True(t, IsRetryable(err))
	})

	t.Run("permanent api error", func(t *testing.T) {
		api := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}
		err := classifyError(api)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, resource.OperationErrorCodeAccessDenied, ResourceErrorCodeFor(err))
	})

	t.Run("not found", func(t *testing.T) {
		err := classifyError(&smithy.GenericAPIError{Code: "ResourceNotFoundException"})
		assert.True(t, IsNotFound(err))
	})

	t.Run("plain transport failure is retryable", func(t *testing.T) {
		err := classifyError(errors.New("connection reset by peer"))
		assert.True(t, IsRetryable(err))
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, classifyError(context.Canceled), context.Canceled)
		assert.False(t, IsRetryable(classifyError(context.Canceled)))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyError(nil))
	})
}

func TestAllRequiredActions(t *testing.T) {
	actions := AllRequiredActions()
	assert.Len(t, actions, 11)
	assert.Equal(t, "securitylake:CreateDataLake", actions[0])
	assert.Contains(t, actions, "securitylake:ListSubscribers")
	for _, a := range actions {
		assert.NotContains(t, a, "*")
	}
}
