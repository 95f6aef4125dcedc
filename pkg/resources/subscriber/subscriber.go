// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package subscriber grants external principals access to a data lake.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/prov"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
	sltransport "github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/transport/securitylake"
)

const ResourceTypeSubscriber = "SecurityLake::Lake::Subscriber"

var Schema = model.Schema{
	Identifier:   "subscriberName",
	Discoverable: true,
	Fields: []string{
		"subscriberName", "subscriberDescription", "principal", "externalId",
		"accessTypes", "sources", "dataLakeArn",
	},
	Hints: map[string]model.FieldHint{
		"subscriberName": {Required: true, CreateOnly: true},
		"principal":      {Required: true, CreateOnly: true},
		"externalId":     {CreateOnly: true},
		"accessTypes":    {Required: true, CreateOnly: true},
		"sources":        {Required: true, CreateOnly: true},
		"dataLakeArn":    {Required: true, CreateOnly: true},
	},
}

// Properties is the property bag of a Subscriber resource
type Properties struct {
	Name        string               `json:"subscriberName"`
	Description string               `json:"subscriberDescription,omitempty"`
	Principal   string               `json:"principal"`
	ExternalID  string               `json:"externalId,omitempty"`
	AccessTypes []lake.AccessType    `json:"accessTypes"`
	Sources     []lake.LogSourceSpec `json:"sources"`
	DataLakeArn string               `json:"dataLakeArn"`

	SubscriberArn    string `json:"subscriberArn,omitempty"`
	ResourceShareArn string `json:"resourceShareArn,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Subscriber provisioner
type Subscriber struct {
	Client    *client.Client
	registrar *Registrar
}

var _ prov.Provisioner = &Subscriber{}

func init() {
	registry.Register(ResourceTypeSubscriber,
		[]resource.Operation{
			resource.OperationCreate,
			resource.OperationRead,
			resource.OperationDelete,
			resource.OperationCheckStatus,
			resource.OperationList,
		},
		func(c *client.Client) prov.Provisioner { return New(c) })
}

// New creates a subscriber provisioner
func New(c *client.Client) *Subscriber {
	return &Subscriber{
		Client:    c,
		registrar: NewRegistrar(c.ControlPlane, nil, c.Config.Settings.DefaultSourceVersion),
	}
}

// Create registers the subscriber on the data lake in dataLakeArn
func (s *Subscriber) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	var props Properties
	if err := json.Unmarshal(request.Properties, &props); err != nil {
		return base.CreateFailure(resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("failed to parse properties: %v", err)), nil
	}

	reg, err := s.registrar.Register(ctx, props.DataLakeArn, Binding{
		Name:        props.Name,
		Description: props.Description,
		Principal:   lake.Principal{Account: props.Principal, ExternalID: props.ExternalID},
		AccessTypes: props.AccessTypes,
		Sources:     props.Sources,
	})
	if err != nil {
		return base.CreateError(err), nil
	}

	nativeID := base.NativeID{Account: s.Client.Config.Account, Region: reg.Region, Name: reg.SubscriberID}
	props.SubscriberArn = reg.SubscriberArn
	if reg.ShareReference != reg.SubscriberArn {
		props.ResourceShareArn = reg.ShareReference
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return base.CreateFailure(resource.OperationErrorCodeGeneralServiceException, err.Error()), nil
	}

	return &resource.CreateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:          resource.OperationCreate,
			OperationStatus:    resource.OperationStatusSuccess,
			NativeID:           nativeID.String(),
			ResourceProperties: propsJSON,
		},
	}, nil
}

// Read retrieves the subscriber
func (s *Subscriber) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	sub, err := s.Client.ControlPlane.GetSubscriber(ctx, id.Name)
	if sltransport.IsNotFound(err) {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, nil
	}
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: base.ErrorCodeFor(err),
		}, fmt.Errorf("failed to read subscriber: %w", err)
	}

	propsJSON, err := json.Marshal(toProperties(sub))
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{
		Properties: string(propsJSON),
	}, nil
}

// Update is not supported: every subscriber property is create-only
func (s *Subscriber) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeNotUpdatable,
		"subscribers cannot be updated; replace the resource instead"), nil
}

// Delete removes the subscriber and revokes its access
func (s *Subscriber) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return base.DeleteFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}

	err = s.Client.ControlPlane.DeleteSubscriber(ctx, id.Name)
	if err != nil && !sltransport.IsNotFound(err) {
		return base.DeleteError(request.NativeID, err), nil
	}
	return base.DeleteSuccess(request.NativeID), nil
}

// Status reports the subscriber status
func (s *Subscriber) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return base.StatusFailure(request, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}

	sub, err := s.Client.ControlPlane.GetSubscriber(ctx, id.Name)
	if err != nil {
		return base.StatusFailure(request, base.ErrorCodeFor(err), err.Error()), nil
	}

	result := &resource.ProgressResult{
		Operation: resource.OperationCheckStatus,
		RequestID: request.RequestID,
		NativeID:  request.NativeID,
	}
	switch sub.Status {
	case "PENDING":
		result.OperationStatus = resource.OperationStatusInProgress
	case "DEACTIVATED":
		result.OperationStatus = resource.OperationStatusFailure
		result.ErrorCode = resource.OperationErrorCodeGeneralServiceException
		result.StatusMessage = fmt.Sprintf("subscriber %s is deactivated", sub.ID)
	default:
		propsJSON, err := json.Marshal(toProperties(sub))
		if err != nil {
			return base.StatusFailure(request, resource.OperationErrorCodeGeneralServiceException, err.Error()), nil
		}
		result.OperationStatus = resource.OperationStatusSuccess
		result.ResourceProperties = propsJSON
	}
	return &resource.StatusResult{ProgressResult: result}, nil
}

// List discovers subscribers of the target region
func (s *Subscriber) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	subs, err := s.Client.ControlPlane.ListSubscribers(ctx)
	if err != nil {
		return &resource.ListResult{}, fmt.Errorf("failed to list subscribers: %w", err)
	}

	nativeIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		nativeIDs = append(nativeIDs, base.NativeID{
			Account: s.Client.Config.Account,
			Region:  s.Client.Config.Region,
			Name:    sub.ID,
		}.String())
	}
	return &resource.ListResult{
		NativeIDs: nativeIDs,
	}, nil
}

func toProperties(sub *sltransport.Subscriber) Properties {
	props := Properties{
		Name:             sub.Name,
		Description:      sub.Description,
		Principal:        sub.Principal,
		SubscriberArn:    sub.Arn,
		ResourceShareArn: sub.ResourceShareArn,
		Status:           sub.Status,
	}
	for _, t := range sub.AccessTypes {
		props.AccessTypes = append(props.AccessTypes, lake.AccessType(t))
	}
	for _, ref := range sub.Sources {
		props.Sources = append(props.Sources, lake.LogSourceSpec{
			Kind:    lake.SourceKind(ref.SourceName),
			Version: ref.SourceVersion,
		})
	}
	return props
}
