// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package base

import (
	"errors"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// ErrorCodeFor maps a provisioning or transport error to a formae error code
func ErrorCodeFor(err error) resource.OperationErrorCode {
	var transportErr *sltransport.Error
	if errors.As(err, &transportErr) {
		return sltransport.ToResourceErrorCode(transportErr.Code)
	}
	var permanent *provisioning.PermanentConfigurationError
	if errors.As(err, &permanent) {
		return resource.OperationErrorCodeInvalidRequest
	}
	return resource.OperationErrorCodeServiceInternalError
}

// CreateFailure builds a failed create result
func CreateFailure(errorCode resource.OperationErrorCode, message string) *resource.CreateResult {
	return &resource.CreateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCreate,
			OperationStatus: resource.OperationStatusFailure,
			ErrorCode:       errorCode,
			StatusMessage:   message,
		},
	}
}

// CreateError builds a failed create result from err
func CreateError(err error) *resource.CreateResult {
	return CreateFailure(ErrorCodeFor(err), err.Error())
}

// UpdateFailure builds a failed update result
func UpdateFailure(nativeID string, errorCode resource.OperationErrorCode, message string) *resource.UpdateResult {
	return &resource.UpdateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationUpdate,
			OperationStatus: resource.OperationStatusFailure,
			ErrorCode:       errorCode,
			StatusMessage:   message,
			NativeID:        nativeID,
		},
	}
}

// UpdateError builds a failed update result from err
func UpdateError(nativeID string, err error) *resource.UpdateResult {
	return UpdateFailure(nativeID, ErrorCodeFor(err), err.Error())
}

// DeleteFailure builds a failed delete result
func DeleteFailure(nativeID string, errorCode resource.OperationErrorCode, message string) *resource.DeleteResult {
	return &resource.DeleteResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationDelete,
			OperationStatus: resource.OperationStatusFailure,
			ErrorCode:       errorCode,
			StatusMessage:   message,
			NativeID:        nativeID,
		},
	}
}

// DeleteError builds a failed delete result from err
func DeleteError(nativeID string, err error) *resource.DeleteResult {
	return DeleteFailure(nativeID, ErrorCodeFor(err), err.Error())
}

// DeleteSuccess builds a completed delete result
func DeleteSuccess(nativeID string) *resource.DeleteResult {
	return &resource.DeleteResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationDelete,
			OperationStatus: resource.OperationStatusSuccess,
			NativeID:        nativeID,
		},
	}
}

// StatusFailure builds a failed status result
func StatusFailure(request *resource.StatusRequest, errorCode resource.OperationErrorCode, message string) *resource.StatusResult {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusFailure,
			RequestID:       request.RequestID,
			NativeID:        request.NativeID,
			ErrorCode:       errorCode,
			StatusMessage:   message,
		},
	}
}
