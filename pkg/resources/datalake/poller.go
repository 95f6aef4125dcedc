// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datalake

import (
	"context"
	"errors"
	"fmt"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

// Poller reports data lake readiness from ListDataLakes. It never writes.
type Poller struct {
	plane sltransport.ControlPlane
}

var _ provisioning.CompletionPoller = (*Poller)(nil)

// NewPoller creates a completion poller backed by plane.
func NewPoller(plane sltransport.ControlPlane) *Poller {
	return &Poller{plane: plane}
}

// Check describes the lake behind physicalID. A lake that is not listed yet
// is still pending.
func (p *Poller) Check(ctx context.Context, physicalID string) (provisioning.Check, error) {
	obs, err := p.observe(ctx, physicalID)
	return obs.check, err
}

// observation is one completion check together with the lake it was made on.
// lake is nil while the lake is not listed.
type observation struct {
	check provisioning.Check
	lake  *sltransport.DataLake
}

func (p *Poller) observe(ctx context.Context, physicalID string) (observation, error) {
	id, err := base.ParseNativeID(base.RegionalFormat, physicalID)
	if err != nil {
		return observation{}, provisioning.Permanent("ListDataLakes", err)
	}

	l, err := describe(ctx, p.plane, id.Region)
	if err != nil {
		if errors.Is(err, errLakeMissing) {
			return observation{check: provisioning.Pending()}, nil
		}
		return observation{}, err
	}
	return observation{check: evaluate(*l), lake: l}, nil
}

func describe(ctx context.Context, plane sltransport.ControlPlane, region string) (*sltransport.DataLake, error) {
	lakes, err := plane.ListDataLakes(ctx, []string{region})
	if err != nil {
		return nil, err
	}
	for i := range lakes {
		if lakes[i].Region == region {
			return &lakes[i], nil
		}
	}
	return nil, errLakeMissing
}

// evaluate maps create and update status to a completion check
func evaluate(l sltransport.DataLake) provisioning.Check {
	switch l.CreateStatus {
	case sltransport.StatusCompleted:
	case sltransport.StatusFailed:
		return provisioning.Failed(fmt.Sprintf("data lake creation failed in %s", l.Region))
	default:
		return provisioning.Pending()
	}

	switch l.UpdateStatus {
	case sltransport.StatusInitialized, sltransport.StatusPending:
		return provisioning.Pending()
	case sltransport.StatusFailed:
		reason := l.UpdateFailure
		if reason == "" {
			reason = "data lake update failed"
		}
		return provisioning.Failed(fmt.Sprintf("%s: %s", l.Region, reason))
	}

	return provisioning.Ready(attributes(l))
}

func attributes(l sltransport.DataLake) provisioning.Attributes {
	return provisioning.Attributes{
		provisioning.AttrArn:          l.Arn,
		provisioning.AttrS3BucketArn:  l.S3BucketArn,
		provisioning.AttrRegion:       l.Region,
		provisioning.AttrGlueDatabase: config.GlueDatabaseName(l.Region),
	}
}
