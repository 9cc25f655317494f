// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tuner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/pvrd/internal/epg"
)

var ErrNoTunerAvailable = errors.New("no tuner available")

// Request describes the stream a recording needs.
type Request struct {
	Hint      int // scheduler assignment; -1 when unknown
	Type      epg.BroadcastType
	NetworkID int64
}

// Pool leases devices to active recordings at execution time. Two leases on the
// same network share one device.
type Pool struct {
	inv Inventory

	mu     sync.Mutex
	leases map[int]*lease // device index -> lease
}

type lease struct {
	btype     epg.BroadcastType
	networkID int64
	refs      int
}

// serves reports whether the device behind l is tuned to req's network.
func (l *lease) serves(req Request) bool {
	return l.btype == req.Type && l.networkID == req.NetworkID
}

func NewPool(inv Inventory) *Pool {
	return &Pool{inv: inv, leases: make(map[int]*lease)}
}

// Handle is a leased device. Release is idempotent.
type Handle struct {
	Device    Device
	NetworkID int64

	pool *Pool
	once sync.Once
}

// Release returns the lease to the pool.
func (h *Handle) Release() {
	h.once.Do(func() { h.pool.release(h.Device.Index) })
}

// Acquire re-resolves a concrete device for req: the hinted device first, then
// any device already tuned to the same network, then the first free device.
func (p *Pool) Acquire(ctx context.Context, req Request) (*Handle, error) {
	devices, err := p.inv.GetTuners(ctx)
	if err != nil {
		return nil, fmt.Errorf("tuner inventory: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	usable := func(d Device) bool {
		if !d.Supports(req.Type) {
			return false
		}
		l, busy := p.leases[d.Index]
		return !busy || l.serves(req)
	}

	var pick *Device
	for i := range devices {
		if devices[i].Index == req.Hint && usable(devices[i]) {
			pick = &devices[i]
			break
		}
	}
	if pick == nil {
		for i := range devices {
			if l, busy := p.leases[devices[i].Index]; busy && l.serves(req) && devices[i].Supports(req.Type) {
				pick = &devices[i]
				break
			}
		}
	}
	if pick == nil {
		for i := range devices {
			if usable(devices[i]) {
				pick = &devices[i]
				break
			}
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("%w: type=%s network=%d", ErrNoTunerAvailable, req.Type, req.NetworkID)
	}

	l, ok := p.leases[pick.Index]
	if !ok {
		l = &lease{btype: req.Type, networkID: req.NetworkID}
		p.leases[pick.Index] = l
	}
	l.refs++
	return &Handle{Device: *pick, NetworkID: req.NetworkID, pool: p}, nil
}

func (p *Pool) release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.leases[index]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(p.leases, index)
	}
}

// InUse returns the number of devices currently leased.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}
