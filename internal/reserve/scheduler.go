// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"sort"
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/tuner"
)

// Result is the outcome of one scheduling pass.
type Result struct {
	// Reserves are ordered by start time, then id.
	Reserves []Reserve
	Counts   Counts
}

// Scheduler classifies reservations. It is a pure function of its input:
// running it twice on the same set yields the same labels and tuners.
type Scheduler struct{}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Schedule labels every reservation normal, skip, overlap or conflict and
// assigns a tuner to each normal one. IsSkip must already be decided; the
// input is not modified.
func (s *Scheduler) Schedule(in []Reserve, pool tuner.Snapshot) Result {
	rs := make([]Reserve, len(in))
	for i := range in {
		r := in[i].Clone()
		r.IsConflict = false
		r.IsOverlap = false
		r.TunerID = NoTuner
		r.RecordEndAt = time.Time{}
		rs[i] = r
	}

	markOverlaps(rs)
	allocate(rs, pool)

	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].StartAt.Equal(rs[j].StartAt) {
			return rs[i].StartAt.Before(rs[j].StartAt)
		}
		return rs[i].ID < rs[j].ID
	})
	return Result{Reserves: rs, Counts: CountOf(rs)}
}

// primaryBefore orders duplicates of one slot: manual and time-specified
// first, then the lower rule id, then the older reservation.
func primaryBefore(a, b *Reserve) bool {
	if pa, pb := a.IsManual() || a.IsTimeSpecified(), b.IsManual() || b.IsTimeSpecified(); pa != pb {
		return pa
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	return a.ID < b.ID
}

type slotKey struct {
	channelID int64
	start     int64
	end       int64
}

// markOverlaps keeps one primary per identical (channel, start, end) slot.
func markOverlaps(rs []Reserve) {
	groups := make(map[slotKey][]int)
	for i := range rs {
		r := &rs[i]
		if r.IsSkip || r.OverlapReleased {
			continue
		}
		k := slotKey{channelID: r.ChannelID, start: r.StartAt.UnixMilli(), end: r.EndAt.UnixMilli()}
		groups[k] = append(groups[k], i)
	}
	for _, idx := range groups {
		if len(idx) < 2 {
			continue
		}
		sort.Slice(idx, func(a, b int) bool { return primaryBefore(&rs[idx[a]], &rs[idx[b]]) })
		for _, i := range idx[1:] {
			rs[i].IsOverlap = true
		}
	}
}

// unit is a tuner demand: same-network reservations with overlapping
// intervals ride on one tuner.
type unit struct {
	start   time.Time
	end     time.Time
	btype   epg.BroadcastType
	members []int
	manual  bool
	minID   int64
}

func (u *unit) overlaps(v *unit) bool {
	return v.start.Before(u.end) && u.start.Before(v.end)
}

// networkKey partitions demand by broadcast type, then network.
type networkKey struct {
	btype     epg.BroadcastType
	networkID int64
}

func buildUnits(rs []Reserve) []*unit {
	byNetwork := make(map[networkKey][]int)
	for i := range rs {
		if rs[i].Status() != StatusNormal {
			continue
		}
		k := networkKey{btype: rs[i].BroadcastType, networkID: rs[i].NetworkID}
		byNetwork[k] = append(byNetwork[k], i)
	}

	var units []*unit
	for _, idx := range byNetwork {
		sort.Slice(idx, func(a, b int) bool {
			ra, rb := &rs[idx[a]], &rs[idx[b]]
			if !ra.StartAt.Equal(rb.StartAt) {
				return ra.StartAt.Before(rb.StartAt)
			}
			return ra.ID < rb.ID
		})
		var cur *unit
		for _, i := range idx {
			r := &rs[i]
			if cur == nil || !r.StartAt.Before(cur.end) {
				cur = &unit{start: r.StartAt, end: r.EndAt, btype: r.BroadcastType, minID: r.ID}
				units = append(units, cur)
			}
			cur.members = append(cur.members, i)
			if r.EndAt.After(cur.end) {
				cur.end = r.EndAt
			}
			if r.IsManual() || r.IsTimeSpecified() {
				cur.manual = true
			}
			if r.ID < cur.minID {
				cur.minID = r.ID
			}
		}
	}

	sort.Slice(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		if a.manual != b.manual {
			return a.manual
		}
		return a.minID < b.minID
	})
	return units
}

// allocate places demand units first-fit in pool order. A unit that fits
// nowhere may take a tuner whose overlapping units all agree to give up
// their tail; otherwise all its members conflict.
func allocate(rs []Reserve, pool tuner.Snapshot) {
	units := buildUnits(rs)
	assigned := make([][]*unit, len(pool))

	for _, u := range units {
		placed := -1
		for ti, dev := range pool {
			if !dev.Supports(u.btype) {
				continue
			}
			if !overlapsAny(assigned[ti], u) {
				placed = ti
				break
			}
		}
		if placed < 0 {
			placed = takeByEndLack(rs, pool, assigned, u)
		}
		if placed < 0 {
			for _, m := range u.members {
				rs[m].IsConflict = true
			}
			continue
		}
		assigned[placed] = append(assigned[placed], u)
		for _, m := range u.members {
			rs[m].TunerID = pool[placed].Index
		}
	}
}

func overlapsAny(list []*unit, u *unit) bool {
	for _, v := range list {
		if v.overlaps(u) {
			return true
		}
	}
	return false
}

// takeByEndLack returns the first tuner whose overlapping units all started
// before u and consist, where they reach past u.start, only of members that
// allow end lack. Those members are truncated to u.start.
func takeByEndLack(rs []Reserve, pool tuner.Snapshot, assigned [][]*unit, u *unit) int {
	for ti, dev := range pool {
		if !dev.Supports(u.btype) {
			continue
		}
		var hits []*unit
		ok := true
		for _, v := range assigned[ti] {
			if !v.overlaps(u) {
				continue
			}
			if !v.start.Before(u.start) {
				ok = false
				break
			}
			for _, m := range v.members {
				r := &rs[m]
				if !r.RecordEnd().After(u.start) {
					continue
				}
				if !r.AllowEndLack || !r.StartAt.Before(u.start) {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
			hits = append(hits, v)
		}
		if !ok || len(hits) == 0 {
			continue
		}

		for _, v := range hits {
			end := v.start
			for _, m := range v.members {
				r := &rs[m]
				if r.RecordEnd().After(u.start) {
					r.RecordEndAt = u.start
				}
				if e := r.RecordEnd(); e.After(end) {
					end = e
				}
			}
			v.end = end
		}
		return ti
	}
	return -1
}
