// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tuner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// StaticInventory serves a configured device list. Set replaces it when the
// configuration is reloaded.
type StaticInventory struct {
	mu      sync.RWMutex
	devices Snapshot
}

// NewStaticInventory assigns indexes in declaration order.
func NewStaticInventory(devices []Device) *StaticInventory {
	inv := &StaticInventory{}
	inv.Set(devices)
	return inv
}

// Set replaces the device list and reports whether it changed.
func (s *StaticInventory) Set(devices []Device) bool {
	indexed := make([]Device, len(devices))
	for i, d := range devices {
		d.Index = i
		indexed[i] = d
	}
	next := NewSnapshot(indexed)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := !s.devices.Equal(next)
	s.devices = next
	return changed
}

func (s *StaticInventory) GetTuners(_ context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewSnapshot(s.devices), nil
}

// CachedInventory polls an upstream inventory at most once per TTL and
// collapses concurrent polls into one.
type CachedInventory struct {
	upstream Inventory
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	cached    Snapshot
	fetchedAt time.Time
}

func NewCachedInventory(upstream Inventory, ttl time.Duration) *CachedInventory {
	return &CachedInventory{upstream: upstream, ttl: ttl, now: time.Now}
}

func (c *CachedInventory) GetTuners(ctx context.Context) ([]Device, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		out := NewSnapshot(c.cached)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("tuners", func() (interface{}, error) {
		devices, err := c.upstream.GetTuners(ctx)
		if err != nil {
			return nil, err
		}
		snap := NewSnapshot(devices)
		c.mu.Lock()
		c.cached = snap
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(v.(Snapshot)), nil
}

// Invalidate forces the next GetTuners to poll upstream.
func (c *CachedInventory) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

var (
	_ Inventory = (*StaticInventory)(nil)
	_ Inventory = (*CachedInventory)(nil)
)
