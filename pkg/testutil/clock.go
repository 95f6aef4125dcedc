// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package testutil

import (
	"context"
	"sync"
	"time"
)

// Epoch is the start time of every FakeClock created with NewFakeClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a virtual clock: Sleep advances time instantly.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep, when set, runs after each Sleep advanced the clock.
	OnSleep func(n int, now time.Time)
}

// NewFakeClock returns a clock starting at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed returns the virtual time since Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// Sleep advances the clock by d unless ctx is already done.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n, now, hook := len(c.sleeps), c.now, c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n, now)
	}
	return ctx.Err()
}

// Sleeps returns the durations passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
