// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tuner models the receiving hardware: the inventory polled by the
// scheduler and the handles leased by active recordings.
package tuner

import (
	"context"
	"slices"
	"sort"

	"github.com/ManuGH/pvrd/internal/epg"
)

// Device is one tuner. Index is its stable position in the pool and doubles as
// the id stored on reservations as an assignment hint.
type Device struct {
	Index   int                 `json:"index" yaml:"-"`
	Name    string              `json:"name" yaml:"name"`
	Types   []epg.BroadcastType `json:"types" yaml:"types"`
	Command string              `json:"-" yaml:"command"`
}

// Supports reports whether the device can receive broadcast type t.
func (d Device) Supports(t epg.BroadcastType) bool {
	return slices.Contains(d.Types, t)
}

// Inventory provides the authoritative device list.
type Inventory interface {
	GetTuners(ctx context.Context) ([]Device, error)
}

// Snapshot is an immutable, index-ordered copy of the inventory used for one
// scheduler pass.
type Snapshot []Device

// NewSnapshot copies devices and orders them by index.
func NewSnapshot(devices []Device) Snapshot {
	out := make(Snapshot, len(devices))
	for i, d := range devices {
		d.Types = slices.Clone(d.Types)
		out[i] = d
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ByType groups device indexes by the broadcast types they support. A device
// supporting several types appears in each group.
func (s Snapshot) ByType() map[epg.BroadcastType][]int {
	out := make(map[epg.BroadcastType][]int)
	for _, d := range s {
		for _, t := range d.Types {
			out[t] = append(out[t], d.Index)
		}
	}
	return out
}

// Count returns how many devices support t.
func (s Snapshot) Count(t epg.BroadcastType) int {
	n := 0
	for _, d := range s {
		if d.Supports(t) {
			n++
		}
	}
	return n
}

// Equal reports whether two snapshots describe the same hardware.
func (s Snapshot) Equal(o Snapshot) bool {
	return slices.EqualFunc(s, o, func(a, b Device) bool {
		return a.Index == b.Index && a.Name == b.Name && a.Command == b.Command && slices.Equal(a.Types, b.Types)
	})
}
