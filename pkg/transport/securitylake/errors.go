// pkg/transport/securitylake/errors.go
package securitylake

import (
	"context"
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
)

// ErrorCode represents transport-level error classifications
type ErrorCode string

const (
	ErrorCodeNone             ErrorCode = "NONE"
	ErrorCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrorCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrorCodeConflict         ErrorCode = "CONFLICT"
	ErrorCodeThrottling       ErrorCode = "THROTTLING"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrorCodeUnknown          ErrorCode = "UNKNOWN"
)

// Error represents a transport layer error with classification
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPCode   int
	APICode    string
	Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether the failure is transient (throttling, 5xx, transport).
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrorCodeThrottling, ErrorCodeInternalError, ErrorCodeUnknown:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus maps HTTP status codes to error codes
func ClassifyHTTPStatus(statusCode int) ErrorCode {
	switch statusCode {
	case 200, 201, 204:
		return ErrorCodeNone
	case 400:
		return ErrorCodeInvalidInput
	case 401, 403:
		return ErrorCodeUnauthorized
	case 404:
		return ErrorCodeResourceNotFound
	case 409:
		return ErrorCodeConflict
	case 429:
		return ErrorCodeThrottling
	case 500, 502, 503, 504:
		return ErrorCodeInternalError
	default:
		if statusCode >= 200 && statusCode < 300 {
			return ErrorCodeNone
		}
		return ErrorCodeUnknown
	}
}

// ClassifyAPICode maps Security Lake exception names to error codes
func ClassifyAPICode(apiCode string) ErrorCode {
	switch apiCode {
	case "BadRequestException", "ValidationException":
		return ErrorCodeInvalidInput
	case "AccessDeniedException", "UnauthorizedException":
		return ErrorCodeUnauthorized
	case "ResourceNotFoundException":
		return ErrorCodeResourceNotFound
	case "ConflictException":
		return ErrorCodeConflict
	case "ThrottlingException", "TooManyRequestsException":
		return ErrorCodeThrottling
	case "InternalServerException", "ServiceUnavailableException":
		return ErrorCodeInternalError
	default:
		return ErrorCodeUnknown
	}
}

// ToResourceErrorCode converts transport error code to formae resource error code
func ToResourceErrorCode(code ErrorCode) resource.OperationErrorCode {
	switch code {
	case ErrorCodeInvalidInput:
		return resource.OperationErrorCodeInvalidRequest
	case ErrorCodeUnauthorized:
		return resource.OperationErrorCodeAccessDenied
	case ErrorCodeResourceNotFound:
		return resource.OperationErrorCodeNotFound
	case ErrorCodeAlreadyExists, ErrorCodeConflict:
		return resource.OperationErrorCodeAlreadyExists
	case ErrorCodeThrottling:
		return resource.OperationErrorCodeThrottling
	case ErrorCodeInternalError:
		return resource.OperationErrorCodeServiceInternalError
	default:
		return resource.OperationErrorCodeServiceInternalError
	}
}

// ResourceErrorCodeFor finds the transport error in err's chain and maps it
func ResourceErrorCodeFor(err error) resource.OperationErrorCode {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return ToResourceErrorCode(transportErr.Code)
	}
	return resource.OperationErrorCodeServiceInternalError
}

// IsRetryable reports whether err carries a transient transport failure
func IsRetryable(err error) bool {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return transportErr.Retryable()
	}
	return false
}

// IsNotFound reports whether err is a classified not-found error
func IsNotFound(err error) bool {
	var transportErr *Error
	return errors.As(err, &transportErr) && transportErr.Code == ErrorCodeResourceNotFound
}

// NewError creates a new transport error
func NewError(code ErrorCode, message string, underlying error) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// classifyError converts SDK errors to transport errors
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	// Cancellation is the caller's decision, not a control plane failure
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	out := &Error{
		Code:       ErrorCodeUnknown,
		Message:    err.Error(),
		Underlying: err,
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		out.HTTPCode = respErr.HTTPStatusCode()
		out.Code = ClassifyHTTPStatus(out.HTTPCode)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		out.APICode = apiErr.ErrorCode()
		out.Message = apiErr.ErrorMessage()
		if code := ClassifyAPICode(out.APICode); code != ErrorCodeUnknown {
			out.Code = code
		}
	}

	return out
}
