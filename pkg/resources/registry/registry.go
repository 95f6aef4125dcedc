// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package registry

import (
	"sort"
	"sync"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/client"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/resources/prov"
)

// ProvisionerFactory creates a provisioner bound to a Security Lake client
type ProvisionerFactory func(c *client.Client) prov.Provisioner

type registration struct {
	operations []resource.Operation
	factory    ProvisionerFactory
}

var (
	mu            sync.RWMutex
	registrations = make(map[string]*registration)
)

// Register registers a resource type with its provisioner factory
func Register(resourceType string, operations []resource.Operation, factory ProvisionerFactory) {
	mu.Lock()
	defer mu.Unlock()
	registrations[resourceType] = &registration{
		operations: operations,
		factory:    factory,
	}
}

// GetFactory returns the provisioner factory for a resource type
func GetFactory(resourceType string) (ProvisionerFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registrations[resourceType]
	if !ok {
		return nil, false
	}
	return reg.factory, true
}

// Get returns a provisioner for resourceType bound to c, or nil if unregistered
func Get(resourceType string, c *client.Client) prov.Provisioner {
	factory, ok := GetFactory(resourceType)
	if !ok {
		return nil
	}
	return factory(c)
}

// GetOperations returns supported operations for a resource type
func GetOperations(resourceType string) []resource.Operation {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registrations[resourceType]
	if !ok {
		return nil
	}
	return reg.operations
}

// Supports reports whether resourceType supports op
func Supports(resourceType string, op resource.Operation) bool {
	for _, o := range GetOperations(resourceType) {
		if o == op {
			return true
		}
	}
	return false
}

// HasProvisioner checks if a resource type is registered
func HasProvisioner(resourceType string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registrations[resourceType]
	return ok
}

// ResourceTypes returns all registered resource types, sorted
func ResourceTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(registrations))
	for t := range registrations {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
