// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Diff is the change a committed pass made to the reservation set. Each list
// is ordered by id.
type Diff struct {
	Inserted []Reserve `json:"inserted,omitempty"`
	Updated  []Reserve `json:"updated,omitempty"`
	Deleted  []Reserve `json:"deleted,omitempty"`
}

func (d Diff) Empty() bool {
	return len(d.Inserted) == 0 && len(d.Updated) == 0 && len(d.Deleted) == 0
}

var ignoreBookkeeping = cmpopts.IgnoreFields(Reserve{}, "UpdatedAt")

// Changed reports whether two versions of a reservation differ in anything
// but bookkeeping timestamps.
func Changed(prev, next Reserve) bool {
	return !cmp.Equal(prev, next, ignoreBookkeeping, cmpopts.EquateEmpty())
}

// ComputeDiff compares the committed set with a pass result.
func ComputeDiff(prev map[int64]Reserve, next []Reserve) Diff {
	var d Diff
	seen := make(map[int64]bool, len(next))
	for _, n := range next {
		seen[n.ID] = true
		p, ok := prev[n.ID]
		switch {
		case !ok:
			d.Inserted = append(d.Inserted, n)
		case Changed(p, n):
			d.Updated = append(d.Updated, n)
		}
	}
	for id, p := range prev {
		if !seen[id] {
			d.Deleted = append(d.Deleted, p)
		}
	}
	byID := func(rs []Reserve) {
		sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	}
	byID(d.Inserted)
	byID(d.Updated)
	byID(d.Deleted)
	return d
}
