// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tuner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInventory() *StaticInventory {
	return NewStaticInventory([]Device{
		{Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}},
		{Name: "gr1", Types: []epg.BroadcastType{epg.BroadcastGR}},
		{Name: "bs0", Types: []epg.BroadcastType{epg.BroadcastBS, epg.BroadcastCS}},
	})
}

func TestPool_AcquirePrefersHint(t *testing.T) {
	p := NewPool(testInventory())
	h, err := p.Acquire(context.Background(), Request{Hint: 1, Type: epg.BroadcastGR, NetworkID: 1})
	require.NoError(t, err)
	assert.Equal(t, "gr1", h.Device.Name)
}

func TestPool_SameNetworkShares(t *testing.T) {
	p := NewPool(testInventory())
	ctx := context.Background()

	a, err := p.Acquire(ctx, Request{Hint: 0, Type: epg.BroadcastGR, NetworkID: 1})
	require.NoError(t, err)
	b, err := p.Acquire(ctx, Request{Hint: -1, Type: epg.BroadcastGR, NetworkID: 1})
	require.NoError(t, err)
	assert.Equal(t, a.Device.Index, b.Device.Index)
	assert.Equal(t, 1, p.InUse())

	c, err := p.Acquire(ctx, Request{Hint: 0, Type: epg.BroadcastGR, NetworkID: 2})
	require.NoError(t, err)
	assert.Equal(t, "gr1", c.Device.Name, "hinted device busy on another network")

	_, err = p.Acquire(ctx, Request{Hint: -1, Type: epg.BroadcastGR, NetworkID: 3})
	assert.ErrorIs(t, err, ErrNoTunerAvailable)

	a.Release()
	a.Release()
	assert.Equal(t, 2, p.InUse(), "shared lease stays until last release")
	b.Release()
	assert.Equal(t, 1, p.InUse())
}

func TestPool_SharingRequiresSameBroadcastType(t *testing.T) {
	p := NewPool(testInventory())
	ctx := context.Background()

	bs, err := p.Acquire(ctx, Request{Hint: 2, Type: epg.BroadcastBS, NetworkID: 4})
	require.NoError(t, err)
	assert.Equal(t, "bs0", bs.Device.Name)

	_, err = p.Acquire(ctx, Request{Hint: 2, Type: epg.BroadcastCS, NetworkID: 4})
	assert.ErrorIs(t, err, ErrNoTunerAvailable, "CS network 4 is a different transponder")

	bs.Release()
	cs, err := p.Acquire(ctx, Request{Hint: 2, Type: epg.BroadcastCS, NetworkID: 4})
	require.NoError(t, err)
	assert.Equal(t, "bs0", cs.Device.Name)
}

func TestSnapshot_ByType(t *testing.T) {
	devices, err := testInventory().GetTuners(context.Background())
	require.NoError(t, err)
	snap := NewSnapshot(devices)

	byType := snap.ByType()
	assert.Equal(t, []int{0, 1}, byType[epg.BroadcastGR])
	assert.Equal(t, []int{2}, byType[epg.BroadcastCS])
	assert.Equal(t, 1, snap.Count(epg.BroadcastBS))
}

func TestStaticInventory_SetReportsChange(t *testing.T) {
	inv := testInventory()
	assert.False(t, inv.Set([]Device{
		{Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}},
		{Name: "gr1", Types: []epg.BroadcastType{epg.BroadcastGR}},
		{Name: "bs0", Types: []epg.BroadcastType{epg.BroadcastBS, epg.BroadcastCS}},
	}))
	assert.True(t, inv.Set([]Device{{Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}}}))
}

type countingInventory struct {
	calls atomic.Int32
	err   error
}

func (c *countingInventory) GetTuners(context.Context) ([]Device, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []Device{{Index: 0, Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}}}, nil
}

func TestCachedInventory_TTL(t *testing.T) {
	up := &countingInventory{}
	c := NewCachedInventory(up, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.GetTuners(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), up.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.GetTuners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.calls.Load())

	c.Invalidate()
	up.err = errors.New("boom")
	_, err = c.GetTuners(context.Background())
	assert.Error(t, err)
}
