// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package datalake provisions the regional Security Lake data lake. Create
// and Update are submitted and then polled by the agent through Status;
// Delete is fire-and-forget.
package datalake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/prov"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

const ResourceTypeDataLake = "SecurityLake::Lake::DataLake"

var Schema = model.Schema{
	Identifier:   "region",
	Discoverable: true,
	Fields:       []string{"account", "region", "encryptionKeyId", "lifecycle", "metaStoreManagerRoleArn"},
	Hints: map[string]model.FieldHint{
		"region": {
			Required:   true,
			CreateOnly: true,
		},
		"account": {
			CreateOnly: true,
		},
	},
}

// DataLake provisioner
type DataLake struct {
	Client  *client.Client
	handler *Handler
	poller  *Poller
	opts    provisioning.Options
}

var _ prov.Provisioner = &DataLake{}

func init() {
	registry.Register(ResourceTypeDataLake,
		[]resource.Operation{
			resource.OperationCreate,
			resource.OperationRead,
			resource.OperationUpdate,
			resource.OperationDelete,
			resource.OperationCheckStatus,
			resource.OperationList,
		},
		func(c *client.Client) prov.Provisioner { return New(c) })
}

// New creates a data lake provisioner
func New(c *client.Client) *DataLake {
	return &DataLake{
		Client:  c,
		handler: NewHandler(c.ControlPlane),
		poller:  NewPoller(c.ControlPlane),
		opts:    provisioning.OptionsFromSettings(c.Config.Settings),
	}
}

// state is the property document reported by Read and Status
type state struct {
	lake.Properties
	Arn          string `json:"arn,omitempty"`
	S3BucketArn  string `json:"s3BucketArn,omitempty"`
	GlueDatabase string `json:"glueDatabase,omitempty"`
}

// properties decodes request properties and fills target defaults
func (d *DataLake) properties(raw json.RawMessage) (lake.Properties, error) {
	var props lake.Properties
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return props, fmt.Errorf("failed to parse properties: %w", err)
		}
	}
	cfg := d.Client.Config
	if props.Account == "" {
		props.Account = cfg.Account
	}
	if props.Region == "" {
		props.Region = cfg.Region
	}
	if props.MetaStoreManagerRoleArn == "" {
		props.MetaStoreManagerRoleArn = cfg.MetaStoreManagerRoleArn
	}
	return props, nil
}

func (d *DataLake) submit(ctx context.Context, req provisioning.Request) (provisioning.Submission, error) {
	return provisioning.Retry(ctx, d.opts, string(req.Action), func(ctx context.Context) (provisioning.Submission, error) {
		return d.handler.Handle(ctx, req)
	})
}

// Create submits the data lake and returns InProgress; Status reports readiness
func (d *DataLake) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	props, err := d.properties(request.Properties)
	if err != nil {
		return base.CreateFailure(resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}

	sub, err := d.submit(ctx, provisioning.Request{
		LogicalID:  request.Label,
		Action:     provisioning.ActionCreate,
		Properties: props,
	})
	if err != nil {
		return base.CreateError(err), nil
	}

	return &resource.CreateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCreate,
			OperationStatus: resource.OperationStatusInProgress,
			RequestID:       sub.PhysicalID,
			NativeID:        sub.PhysicalID,
		},
	}, nil
}

// Read describes the data lake
func (d *DataLake) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	id, err := base.ParseNativeID(base.RegionalFormat, request.NativeID)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	l, err := describe(ctx, d.Client.ControlPlane, id.Region)
	if errors.Is(err, errLakeMissing) {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, nil
	}
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: base.ErrorCodeFor(err),
		}, fmt.Errorf("failed to read data lake: %w", err)
	}

	propsJSON, err := d.marshalState(id.Account, *l)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{
		Properties: string(propsJSON),
	}, nil
}

// Update reissues the lake configuration. A failed update never removes the lake.
func (d *DataLake) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	var props lake.Properties
	if err := json.Unmarshal(request.DesiredProperties, &props); err != nil {
		return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("failed to parse properties: %v", err)), nil
	}
	if props.MetaStoreManagerRoleArn == "" {
		props.MetaStoreManagerRoleArn = d.Client.Config.MetaStoreManagerRoleArn
	}

	sub, err := d.submit(ctx, provisioning.Request{
		LogicalID:  request.NativeID,
		Action:     provisioning.ActionUpdate,
		PhysicalID: request.NativeID,
		Properties: props,
	})
	if err != nil {
		return base.UpdateError(request.NativeID, err), nil
	}

	return &resource.UpdateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationUpdate,
			OperationStatus: resource.OperationStatusInProgress,
			RequestID:       sub.PhysicalID,
			NativeID:        sub.PhysicalID,
		},
	}, nil
}

// Delete submits the deletion and reports success once it is accepted
func (d *DataLake) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	_, err := d.submit(ctx, provisioning.Request{
		LogicalID:  request.NativeID,
		Action:     provisioning.ActionDelete,
		PhysicalID: request.NativeID,
	})
	if err != nil {
		return base.DeleteError(request.NativeID, err), nil
	}
	return base.DeleteSuccess(request.NativeID), nil
}

// Status runs one completion check
func (d *DataLake) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	nativeID := request.RequestID
	if nativeID == "" {
		nativeID = request.NativeID
	}
	id, err := base.ParseNativeID(base.RegionalFormat, nativeID)
	if err != nil {
		return base.StatusFailure(request, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}

	obs, err := provisioning.Retry(ctx, d.opts, "check", func(ctx context.Context) (observation, error) {
		return d.poller.observe(ctx, nativeID)
	})
	if err != nil {
		return base.StatusFailure(request, base.ErrorCodeFor(err), err.Error()), nil
	}

	result := &resource.ProgressResult{
		Operation: resource.OperationCheckStatus,
		RequestID: request.RequestID,
		NativeID:  nativeID,
	}
	switch obs.check.State {
	case provisioning.CheckPending:
		result.OperationStatus = resource.OperationStatusInProgress
	case provisioning.CheckFailed:
		result.OperationStatus = resource.OperationStatusFailure
		result.ErrorCode = resource.OperationErrorCodeGeneralServiceException
		result.StatusMessage = obs.check.Reason
	case provisioning.CheckReady:
		propsJSON, err := d.marshalState(id.Account, *obs.lake)
		if err != nil {
			return base.StatusFailure(request, resource.OperationErrorCodeGeneralServiceException, err.Error()), nil
		}
		result.OperationStatus = resource.OperationStatusSuccess
		result.ResourceProperties = propsJSON
	}
	return &resource.StatusResult{ProgressResult: result}, nil
}

// List discovers data lakes in every region the account has one
func (d *DataLake) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	lakes, err := d.Client.ControlPlane.ListDataLakes(ctx, nil)
	if err != nil {
		return &resource.ListResult{}, fmt.Errorf("failed to list data lakes: %w", err)
	}

	nativeIDs := make([]string, 0, len(lakes))
	for _, l := range lakes {
		nativeIDs = append(nativeIDs, base.NativeID{Account: d.Client.Config.Account, Region: l.Region}.String())
	}
	return &resource.ListResult{
		NativeIDs: nativeIDs,
	}, nil
}

func (d *DataLake) marshalState(account string, l sltransport.DataLake) ([]byte, error) {
	s := state{
		Properties:   fromLake(account, l),
		Arn:          l.Arn,
		S3BucketArn:  l.S3BucketArn,
		GlueDatabase: attributes(l)[provisioning.AttrGlueDatabase],
	}
	s.MetaStoreManagerRoleArn = d.Client.Config.MetaStoreManagerRoleArn
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	return data, nil
}
