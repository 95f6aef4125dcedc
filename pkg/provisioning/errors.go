// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package provisioning

import (
	"errors"
	"fmt"
	"time"

	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

var (
	// ErrCancelled is returned when the caller aborts a convergence.
	ErrCancelled = errors.New("provisioning cancelled")
	// ErrConvergenceInFlight rejects a second convergence for the same logical resource.
	ErrConvergenceInFlight = errors.New("convergence already in flight")
	// ErrDuplicateRequest rejects a reused idempotency token.
	ErrDuplicateRequest = errors.New("idempotency token already used")
	// ErrProviderFailed wraps a failure reported by the completion poller.
	ErrProviderFailed = errors.New("provider reported failure")
	// ErrNotResolved is returned by consumers that need a resolved parent.
	ErrNotResolved = errors.New("parent resource not resolved")
)

// TransientControlPlaneError is a call failure worth retrying.
type TransientControlPlaneError struct {
	Op  string
	Err error
}

func (e *TransientControlPlaneError) Error() string {
	return fmt.Sprintf("%s: transient control plane error: %v", e.Op, e.Err)
}

func (e *TransientControlPlaneError) Unwrap() error { return e.Err }

// PermanentConfigurationError is a failure that no retry can fix.
type PermanentConfigurationError struct {
	Op  string
	Err error
}

func (e *PermanentConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentConfigurationError) Unwrap() error { return e.Err }

// TimeoutError reports that the total timeout elapsed with no terminal result.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
	Polls   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("not converged after %s (timeout %s, %d polls)", e.Elapsed, e.Timeout, e.Polls)
}

// SequencingError is one failed attachment in a dependency chain.
type SequencingError struct {
	Index    int
	Identity string
	Err      error
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Identity, e.Err)
}

func (e *SequencingError) Unwrap() error { return e.Err }

// RegistrationError is a failed subscriber registration.
type RegistrationError struct {
	Principal string
	ParentID  string
	Err       error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register subscriber %s on %s: %v", e.Principal, e.ParentID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable control-plane failure.
func Transient(op string, err error) error {
	return &TransientControlPlaneError{Op: op, Err: err}
}

// Permanent wraps err as a non-retryable configuration failure.
func Permanent(op string, err error) error {
	return &PermanentConfigurationError{Op: op, Err: err}
}

// Classify wraps a control-plane error according to its transport class.
// Already classified errors and nil are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var transient *TransientControlPlaneError
	var permanent *PermanentConfigurationError
	if errors.As(err, &transient) || errors.As(err, &permanent) {
		return err
	}
	if sltransport.IsRetryable(err) {
		return Transient(op, err)
	}
	return Permanent(op, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientControlPlaneError
	return errors.As(err, &transient)
}
