// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package prov

import (
	"context"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"
)

// Provisioner handles the formae operations of one Security Lake resource type.
// Create and Update may return InProgress; the agent then calls Status until
// the resource converges.
type Provisioner interface {
	Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error)
	Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error)
	Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error)
	Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error)
	List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error)
	Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error)
}
