// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
)

// Candidate is a slot a rule wants recorded. ProgramID is zero for slots
// produced by time-specification rules.
type Candidate struct {
	RuleID        int64
	ProgramID     int64
	ChannelID     int64
	NetworkID     int64
	BroadcastType epg.BroadcastType
	Name          string
	StartAt       time.Time
	EndAt         time.Time
}

// IsTimeSpecified reports whether the candidate is a raw time slot.
func (c Candidate) IsTimeSpecified() bool { return c.ProgramID == 0 }

// Window bounds the programs a matching pass looks at.
type Window struct {
	From time.Time
	To   time.Time
}

// Matcher turns rules into candidates using the program store.
type Matcher struct {
	programs epg.Store
	loc      *time.Location
}

// NewMatcher creates a matcher evaluating day and clock windows in loc
// (time.Local when nil).
func NewMatcher(programs epg.Store, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.Local
	}
	return &Matcher{programs: programs, loc: loc}
}

// FindCandidates returns the candidates of rule r within w, ordered by start.
// Programs already running at w.From are included.
func (m *Matcher) FindCandidates(ctx context.Context, r *Rule, w Window) ([]Candidate, error) {
	if r.IsTimeSpecification {
		return m.expandTimeSpec(ctx, r, w)
	}

	compiled, err := compileRule(r, m.loc)
	if err != nil {
		return nil, err
	}
	programs, err := m.programs.Programs(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("load programs: %w", err)
	}

	var out []Candidate
	for i := range programs {
		p := &programs[i]
		if !compiled.matches(p).Matched {
			continue
		}
		out = append(out, Candidate{
			RuleID:        r.ID,
			ProgramID:     p.ID,
			ChannelID:     p.ChannelID,
			NetworkID:     p.NetworkID,
			BroadcastType: p.BroadcastType,
			Name:          p.Name,
			StartAt:       p.StartAt,
			EndAt:         p.EndAt,
		})
	}
	return out, nil
}

// expandTimeSpec produces one candidate per occurrence of each time window
// that overlaps w.
func (m *Matcher) expandTimeSpec(ctx context.Context, r *Rule, w Window) ([]Candidate, error) {
	if len(r.Search.ChannelIDs) != 1 {
		return nil, fmt.Errorf("%w: time specification needs exactly one channel", ErrInvalidRuleOption)
	}
	ch, err := m.programs.Channel(ctx, r.Search.ChannelIDs[0])
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}

	from := w.From.In(m.loc)
	// Start one day early so windows crossing midnight into w are found.
	day := time.Date(from.Year(), from.Month(), from.Day()-1, 0, 0, 0, 0, m.loc)

	seen := make(map[[2]int64]bool)
	var out []Candidate
	for ; day.Before(w.To); day = day.AddDate(0, 0, 1) {
		for _, tw := range r.Search.Times {
			if len(tw.Days) > 0 && !slices.Contains(tw.Days, int(day.Weekday())) {
				continue
			}
			startMin, endMin, err := parseWindow(tw.Window)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRuleOption, err)
			}
			if startMin == endMin {
				continue
			}
			start := atMinute(day, startMin)
			end := atMinute(day, endMin)
			if endMin < startMin {
				end = atMinute(day.AddDate(0, 0, 1), endMin)
			}
			if !end.After(w.From) || !start.Before(w.To) {
				continue
			}
			key := [2]int64{start.UnixMilli(), end.UnixMilli()}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Candidate{
				RuleID:        r.ID,
				ChannelID:     ch.ID,
				NetworkID:     ch.NetworkID,
				BroadcastType: ch.BroadcastType,
				Name:          r.DisplayName(),
				StartAt:       start,
				EndAt:         end,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}
