// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package logsource attaches native AWS log sources to a data lake through
// an ordered dependency chain.
package logsource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/base"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/prov"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/registry"
)

const ResourceTypeAwsLogSources = "SecurityLake::Lake::AwsLogSources"

var Schema = model.Schema{
	Identifier: "sources",
	Fields:     []string{"dataLakeArn", "sources"},
	Hints: map[string]model.FieldHint{
		"sources": {
			Required: true,
		},
		"dataLakeArn": {
			Required:   true,
			CreateOnly: true,
		},
	},
}

// Properties is the property bag of an AwsLogSources resource. DataLakeArn
// is the Arn the data lake reports once it is ready.
type Properties struct {
	DataLakeArn string               `json:"dataLakeArn"`
	Sources     []lake.LogSourceSpec `json:"sources"`
}

// AwsLogSources provisioner
type AwsLogSources struct {
	Client    *client.Client
	sequencer *Sequencer
}

var _ prov.Provisioner = &AwsLogSources{}

func init() {
	registry.Register(ResourceTypeAwsLogSources,
		[]resource.Operation{
			resource.OperationCreate,
			resource.OperationRead,
			resource.OperationUpdate,
			resource.OperationDelete,
			resource.OperationCheckStatus,
		},
		func(c *client.Client) prov.Provisioner { return New(c) })
}

// New creates a log source provisioner
func New(c *client.Client) *AwsLogSources {
	return &AwsLogSources{
		Client: c,
		sequencer: NewSequencer(c.ControlPlane,
			provisioning.OptionsFromSettings(c.Config.Settings),
			c.Config.Settings.DefaultSourceVersion),
	}
}

// parentOf resolves the data lake a chain is attached to
func parentOf(dataLakeArn string) (base.NativeID, error) {
	if dataLakeArn == "" {
		return base.NativeID{}, provisioning.Permanent("CreateAwsLogSource", provisioning.ErrNotResolved)
	}
	parsed, err := arn.Parse(dataLakeArn)
	if err != nil {
		return base.NativeID{}, provisioning.Permanent("CreateAwsLogSource",
			fmt.Errorf("dataLakeArn is not an ARN: %w", err))
	}
	if parsed.Service != "securitylake" || !strings.HasPrefix(parsed.Resource, "data-lake") {
		return base.NativeID{}, provisioning.Permanent("CreateAwsLogSource",
			fmt.Errorf("%s is not a data lake", dataLakeArn))
	}
	return base.NativeID{Account: parsed.AccountID, Region: parsed.Region}, nil
}

// lakeArn is the Arn of the data lake behind parent
func lakeArn(parent base.NativeID) string {
	return arn.ARN{
		Partition: config.Partition(parent.Region),
		Service:   "securitylake",
		Region:    parent.Region,
		AccountID: parent.Account,
		Resource:  "data-lake/default",
	}.String()
}

// setName joins the refs of a chain into the last native id segment
func (a *AwsLogSources) setName(specs []lake.LogSourceSpec) string {
	links := Plan("", specs, a.sequencer.defaultVersion)
	refs := make([]string, 0, len(links))
	for _, l := range links {
		refs = append(refs, l.Spec.Ref())
	}
	return strings.Join(refs, ",")
}

func specsFromName(name string) ([]lake.LogSourceSpec, error) {
	if name == "" {
		return nil, nil
	}
	var specs []lake.LogSourceSpec
	for _, ref := range strings.Split(name, ",") {
		spec, err := lake.ParseRef(ref)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Create attaches the sources in order. Nothing is submitted until the data
// lake Arn is resolved. A partial chain is reported as a failure;
// resubmitting skips the sources that were attached.
func (a *AwsLogSources) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	var props Properties
	if err := json.Unmarshal(request.Properties, &props); err != nil {
		return base.CreateFailure(resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("failed to parse properties: %v", err)), nil
	}
	if len(props.Sources) == 0 {
		return base.CreateFailure(resource.OperationErrorCodeInvalidRequest,
			"at least one log source is required"), nil
	}
	parent, err := parentOf(props.DataLakeArn)
	if err != nil {
		return base.CreateError(err), nil
	}
	if !base.ValidRegion(parent.Region) {
		return base.CreateFailure(resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("invalid region %q", parent.Region)), nil
	}

	chain := a.sequencer.Sequence(ctx, parent.String(), props.Sources)
	nativeID := base.NativeID{Account: parent.Account, Region: parent.Region, Name: a.setName(props.Sources)}
	if chain.Err != nil {
		result := base.CreateError(chain.Err)
		result.ProgressResult.NativeID = nativeID.String()
		return result, nil
	}

	propsJSON, err := json.Marshal(a.state(parent, props.Sources))
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

func (a *AwsLogSources) state(parent base.NativeID, specs []lake.LogSourceSpec) Properties {
	links := Plan(parent.String(), specs, a.sequencer.defaultVersion)
	props := Properties{DataLakeArn: lakeArn(parent), Sources: make([]lake.LogSourceSpec, 0, len(links))}
	for _, l := range links {
		props.Sources = append(props.Sources, l.Spec)
	}
	return props
}

// Read reports which of the chain's sources are still enabled for all of
// their accounts
func (a *AwsLogSources) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}
	wanted, err := specsFromName(id.Name)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	refs, err := a.Client.ControlPlane.ListLogSources(ctx, []string{id.Region})
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: base.ErrorCodeFor(err),
		}, fmt.Errorf("failed to list log sources: %w", err)
	}
	parent := id.Parent()
	enabled := make(map[string]bool, len(refs))
	for _, ref := range refs {
		account := ref.Account
		if account == "" {
			account = parent.Account
		}
		enabled[acceptKey(ref.SourceName+":"+ref.SourceVersion, account)] = true
	}

	var present []lake.LogSourceSpec
	for _, spec := range wanted {
		all := true
		for _, account := range targets(parent, spec) {
			all = all && enabled[acceptKey(spec.Identity(), account)]
		}
		if all {
			present = append(present, spec)
		}
	}
	if len(present) == 0 {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, nil
	}

	propsJSON, err := json.Marshal(a.state(parent, present))
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{
		Properties: string(propsJSON),
	}, nil
}

// Update attaches added sources and accounts and withdraws removed ones
func (a *AwsLogSources) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}
	current, err := specsFromName(id.Name)
	if err != nil {
		return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}
	var props Properties
	if err := json.Unmarshal(request.DesiredProperties, &props); err != nil {
		return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest,
			fmt.Sprintf("failed to parse properties: %v", err)), nil
	}
	parent := id.Parent()
	if props.DataLakeArn != "" {
		desiredParent, err := parentOf(props.DataLakeArn)
		if err != nil {
			return base.UpdateError(request.NativeID, err), nil
		}
		if desiredParent != parent {
			return base.UpdateFailure(request.NativeID, resource.OperationErrorCodeNotUpdatable,
				"dataLakeArn cannot be changed"), nil
		}
	}

	parentID := parent.String()
	desired := make(map[string]map[string]bool)
	for _, l := range Plan(parentID, props.Sources, a.sequencer.defaultVersion) {
		accounts := make(map[string]bool)
		for _, account := range targets(parent, l.Spec) {
			accounts[account] = true
		}
		desired[l.Identity] = accounts
	}
	var removed []lake.LogSourceSpec
	for _, l := range Plan(parentID, current, a.sequencer.defaultVersion) {
		var dropped []string
		for _, account := range targets(parent, l.Spec) {
			if !desired[l.Identity][account] {
				dropped = append(dropped, account)
			}
		}
		if len(dropped) > 0 {
			spec := l.Spec
			spec.Accounts = dropped
			removed = append(removed, spec)
		}
	}

	withdrawn := a.sequencer.Withdraw(ctx, parentID, removed)
	if withdrawn.Err != nil {
		return base.UpdateError(request.NativeID, withdrawn.Err), nil
	}
	chain := a.sequencer.Sequence(ctx, parentID, props.Sources)

	nativeID := base.NativeID{Account: id.Account, Region: id.Region, Name: a.setName(props.Sources)}
	if chain.Err != nil {
		return base.UpdateError(nativeID.String(), chain.Err), nil
	}

	propsJSON, err := json.Marshal(a.state(parent, props.Sources))
	if err != nil {
		return base.UpdateFailure(nativeID.String(), resource.OperationErrorCodeGeneralServiceException, err.Error()), nil
	}
	return &resource.UpdateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:          resource.OperationUpdate,
			OperationStatus:    resource.OperationStatusSuccess,
			NativeID:           nativeID.String(),
			ResourceProperties: propsJSON,
		},
	}, nil
}

// Delete withdraws the chain in reverse order, for every account it was
// enabled for
func (a *AwsLogSources) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	id, err := base.ParseNativeID(base.RegionalNestedFormat, request.NativeID)
	if err != nil {
		return base.DeleteFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}
	specs, err := specsFromName(id.Name)
	if err != nil {
		return base.DeleteFailure(request.NativeID, resource.OperationErrorCodeInvalidRequest, err.Error()), nil
	}

	chain := a.sequencer.Withdraw(ctx, id.Parent().String(), specs)
	if chain.Err != nil {
		return base.DeleteError(request.NativeID, chain.Err), nil
	}
	return base.DeleteSuccess(request.NativeID), nil
}

// Status always reports success: submissions complete synchronously
func (a *AwsLogSources) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusSuccess,
			RequestID:       request.RequestID,
			NativeID:        request.NativeID,
		},
	}, nil
}

// List is not supported: log source sets are not discoverable
func (a *AwsLogSources) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	return &resource.ListResult{NativeIDs: []string{}}, nil
}
