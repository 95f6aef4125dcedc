// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package provisioning

import (
	"context"
	"sync"
)

// Resolved publishes the attributes of a ready resource exactly once.
// Readers observe either nothing or the final value.
type Resolved struct {
	once  sync.Once
	done  chan struct{}
	attrs Attributes
}

// NewResolved returns an unresolved handle.
func NewResolved() *Resolved {
	return &Resolved{done: make(chan struct{})}
}

// publish stores attrs on the first call and reports whether it did.
func (r *Resolved) publish(attrs Attributes) bool {
	published := false
	r.once.Do(func() {
		r.attrs = attrs.clone()
		close(r.done)
		published = true
	})
	return published
}

// Done is closed once attributes are available.
func (r *Resolved) Done() <-chan struct{} {
	return r.done
}

// Get returns a copy of the attributes, or false when not yet resolved.
func (r *Resolved) Get() (Attributes, bool) {
	select {
	case <-r.done:
		return r.attrs.clone(), true
	default:
		return nil, false
	}
}

// Reference returns the canonical reference, or ErrNotResolved.
func (r *Resolved) Reference() (string, error) {
	attrs, ok := r.Get()
	if !ok || attrs.Reference() == "" {
		return "", ErrNotResolved
	}
	return attrs.Reference(), nil
}

// Wait blocks until the attributes are published or ctx is done.
func (r *Resolved) Wait(ctx context.Context) (Attributes, error) {
	select {
	case <-r.done:
		return r.attrs.clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
