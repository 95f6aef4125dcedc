// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datalake

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// Handler issues the data lake lifecycle calls. It never waits for the
// provider; readiness is the Poller's job.
type Handler struct {
	plane sltransport.ControlPlane
}

var _ provisioning.LifecycleHandler = (*Handler)(nil)

// NewHandler creates a lifecycle handler backed by plane.
func NewHandler(plane sltransport.ControlPlane) *Handler {
	return &Handler{plane: plane}
}

// Handle submits req and returns the physical id without waiting.
func (h *Handler) Handle(ctx context.Context, req provisioning.Request) (provisioning.Submission, error) {
	switch req.Action {
	case provisioning.ActionCreate:
		return h.create(ctx, req.Properties)
	case provisioning.ActionUpdate:
		return h.update(ctx, req.PhysicalID, req.Properties)
	case provisioning.ActionDelete:
		return h.delete(ctx, req.PhysicalID)
	default:
		return provisioning.Submission{}, provisioning.Permanent("handle", fmt.Errorf("unsupported action %q", req.Action))
	}
}

func (h *Handler) create(ctx context.Context, props lake.Properties) (provisioning.Submission, error) {
	if err := props.Validate(); err != nil {
		return provisioning.Submission{}, provisioning.Permanent("CreateDataLake", err)
	}

	out, err := h.plane.CreateDataLake(ctx, toInput(props))
	if err != nil {
		return provisioning.Submission{}, provisioning.Classify("CreateDataLake", err)
	}

	id := base.NativeID{Account: props.Account, Region: props.Region}
	zerolog.Ctx(ctx).Debug().
		Str("native_id", id.String()).
		Str("create_status", out.CreateStatus).
		Msg("data lake create submitted")

	return provisioning.Submission{PhysicalID: id.String(), Status: provisioning.StatusPending}, nil
}

func (h *Handler) update(ctx context.Context, physicalID string, props lake.Properties) (provisioning.Submission, error) {
	id, err := base.ParseNativeID(base.RegionalFormat, physicalID)
	if err != nil {
		return provisioning.Submission{}, provisioning.Permanent("UpdateDataLake", err)
	}
	if props.Region == "" {
		props.Region = id.Region
	}
	if props.Account == "" {
		props.Account = id.Account
	}
	if props.Region != id.Region {
		return provisioning.Submission{}, provisioning.Permanent("UpdateDataLake",
			fmt.Errorf("region is create-only: %s cannot move to %s", id.Region, props.Region))
	}
	if err := props.Validate(); err != nil {
		return provisioning.Submission{}, provisioning.Permanent("UpdateDataLake", err)
	}

	if _, err := h.plane.UpdateDataLake(ctx, toInput(props)); err != nil {
		return provisioning.Submission{}, provisioning.Classify("UpdateDataLake", err)
	}
	zerolog.Ctx(ctx).Debug().Str("native_id", physicalID).Msg("data lake update submitted")

	return provisioning.Submission{PhysicalID: physicalID, Status: provisioning.StatusPending}, nil
}

// delete is fire-and-forget: an accepted (or already absent) lake is done.
func (h *Handler) delete(ctx context.Context, physicalID string) (provisioning.Submission, error) {
	id, err := base.ParseNativeID(base.RegionalFormat, physicalID)
	if err != nil {
		return provisioning.Submission{}, provisioning.Permanent("DeleteDataLake", err)
	}

	err = h.plane.DeleteDataLake(ctx, []string{id.Region})
	if err != nil && !sltransport.IsNotFound(err) {
		return provisioning.Submission{}, provisioning.Classify("DeleteDataLake", err)
	}
	return provisioning.Submission{PhysicalID: physicalID, Status: provisioning.StatusReady}, nil
}

// toInput converts data lake properties to the control plane input
func toInput(props lake.Properties) sltransport.DataLakeInput {
	in := sltransport.DataLakeInput{
		Region:                  props.Region,
		KmsKeyID:                props.EncryptionKeyID,
		MetaStoreManagerRoleArn: props.MetaStoreManagerRoleArn,
	}
	if l := props.Lifecycle; l != nil {
		if l.Expiration != nil {
			in.ExpirationDays = l.Expiration.Days
		}
		for _, t := range l.Transitions {
			in.Transitions = append(in.Transitions, sltransport.Transition{
				Days:         t.Days,
				StorageClass: string(t.StorageClass),
			})
		}
	}
	return in
}

// fromLake rebuilds properties from the describe view of a lake
func fromLake(account string, l sltransport.DataLake) lake.Properties {
	props := lake.Properties{
		Account:         account,
		Region:          l.Region,
		EncryptionKeyID: l.KmsKeyID,
	}
	if l.ExpirationDays > 0 || len(l.Transitions) > 0 {
		lc := &lake.Lifecycle{}
		if l.ExpirationDays > 0 {
			lc.Expiration = &lake.Expiration{Days: l.ExpirationDays}
		}
		for _, t := range l.Transitions {
			lc.Transitions = append(lc.Transitions, lake.Transition{
				Days:         t.Days,
				StorageClass: lake.StorageClass(t.StorageClass),
			})
		}
		props.Lifecycle = lc
	}
	return props
}

var errLakeMissing = errors.New("data lake not found")
