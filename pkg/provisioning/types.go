// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package provisioning drives asynchronous control-plane resources to a
// terminal state: one lifecycle call, then bounded polling until the
// resource is ready, fails, times out or the caller cancels.
package provisioning

import (
	"context"
	"time"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
)

// Action is the lifecycle event a request carries.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// Status is the state of a convergence cycle.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusPending   Status = "Pending"
	StatusPolling   Status = "Polling"
	StatusReady     Status = "Ready"
	StatusFailed    Status = "Failed"
	StatusTimedOut  Status = "TimedOut"
	StatusCancelled Status = "Cancelled"
)

// Terminal reports whether s ends a convergence cycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// Request is an immutable provisioning request.
type Request struct {
	// LogicalID is the caller's stable identity for the resource.
	LogicalID string
	Action    Action
	// PhysicalID identifies the existing resource for Update and Delete.
	PhysicalID       string
	Properties       lake.Properties
	IdempotencyToken string
}

// Submission is what the lifecycle handler returns.
type Submission struct {
	PhysicalID string
	// Status is StatusPending when the provider is still working, or
	// StatusReady when nothing is left to wait for (accepted deletes).
	Status Status
}

// CheckState is the outcome of one completion check.
type CheckState int

const (
	CheckPending CheckState = iota
	CheckReady
	CheckFailed
)

func (s CheckState) String() string {
	switch s {
	case CheckReady:
		return "Ready"
	case CheckFailed:
		return "Failed"
	default:
		return "Pending"
	}
}

// Check is a completion poller result.
type Check struct {
	State      CheckState
	Attributes Attributes
	Reason     string
}

// Pending reports the resource is still converging.
func Pending() Check { return Check{State: CheckPending} }

// Ready reports the resource is usable with its resolved attributes.
func Ready(attrs Attributes) Check { return Check{State: CheckReady, Attributes: attrs} }

// Failed reports the provider rejected the resource.
func Failed(reason string) Check { return Check{State: CheckFailed, Reason: reason} }

// Attribute names published on Ready.
const (
	AttrArn          = "Arn"
	AttrS3BucketArn  = "S3BucketArn"
	AttrRegion       = "Region"
	AttrGlueDatabase = "GlueDatabase"
)

// Attributes is the resolved attribute set of a ready resource.
type Attributes map[string]string

// Reference returns the canonical resource reference.
func (a Attributes) Reference() string {
	return a[AttrArn]
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// LifecycleHandler issues the control-plane call for a lifecycle event.
type LifecycleHandler interface {
	Handle(ctx context.Context, req Request) (Submission, error)
}

// CompletionPoller reports readiness of a physical resource. Implementations
// must be read-only.
type CompletionPoller interface {
	Check(ctx context.Context, physicalID string) (Check, error)
}

// Result is the terminal outcome of a convergence cycle.
type Result struct {
	LogicalID  string
	PhysicalID string
	Status     Status
	Attributes Attributes
	Reason     string
	Err        error
	Polls      int
	Elapsed    time.Duration
}
