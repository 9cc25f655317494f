// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/epg"
)

func TestIsTimeInWindow(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 1, 6, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		t       time.Time
		window  string
		want    bool
		wantErr bool
	}{
		{"inside", at(19, 0), "18:00-20:00", true, false},
		{"end exclusive", at(20, 0), "18:00-20:00", false, false},
		{"compact format", at(18, 0), "1800-2000", true, false},
		{"after midnight", at(1, 0), "22:00-02:00", true, false},
		{"outside crossing", at(3, 0), "22:00-02:00", false, false},
		{"empty window", at(0, 0), "00:00-00:00", false, false},
		{"garbage", at(0, 0), "soon", false, true},
		{"bad minute", at(0, 0), "18:75-19:00", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsTimeInWindow(tt.t, tt.window)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func program(name string) *epg.Program {
	return &epg.Program{
		ID:            1,
		ChannelID:     10,
		NetworkID:     100,
		BroadcastType: epg.BroadcastGR,
		StartAt:       time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC), // Monday
		EndAt:         time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC),
		Name:          name,
		IsFree:        true,
	}
}

func TestRuleMatches_Keyword(t *testing.T) {
	t.Run("all terms must appear", func(t *testing.T) {
		r := &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "evening news"}}}
		assert.True(t, r.Matches(program("The Evening News"), time.UTC).Matched)
		assert.False(t, r.Matches(program("Evening Weather"), time.UTC).Matched)
	})

	t.Run("full width folds to half width", func(t *testing.T) {
		r := &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "ＮＨＫ ニュース"}}}
		res := r.Matches(program("NHKニュース7"), time.UTC)
		assert.True(t, res.Matched, res.Reasons)
	})

	t.Run("case sensitive", func(t *testing.T) {
		r := &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "News", CaseSensitive: true}}}
		assert.False(t, r.Matches(program("late news"), time.UTC).Matched)
		assert.True(t, r.Matches(program("Late News"), time.UTC).Matched)
	})

	t.Run("regex with ignore", func(t *testing.T) {
		r := &Rule{Search: SearchOption{
			Keyword: TextQuery{Keyword: `^show \d+`, Regex: true},
			Ignore:  TextQuery{Keyword: "rerun"},
		}}
		assert.True(t, r.Matches(program("Show 12"), time.UTC).Matched)
		assert.False(t, r.Matches(program("Show 12 (Rerun)"), time.UTC).Matched)
		assert.False(t, r.Matches(program("The Show 12"), time.UTC).Matched)
	})

	t.Run("description target", func(t *testing.T) {
		p := program("Evening")
		p.Description = "A cooking show"
		byName := &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "cooking"}}}
		byDesc := &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "cooking", Description: true}}}
		assert.False(t, byName.Matches(p, time.UTC).Matched)
		assert.True(t, byDesc.Matches(p, time.UTC).Matched)
	})
}

func TestRuleMatches_Filters(t *testing.T) {
	base := func() *Rule {
		return &Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "show"}}}
	}

	tests := []struct {
		name   string
		mutate func(r *Rule, p *epg.Program)
		want   bool
	}{
		{"no filters", func(*Rule, *epg.Program) {}, true},
		{"channel hit", func(r *Rule, _ *epg.Program) { r.Search.ChannelIDs = []int64{10, 11} }, true},
		{"channel miss", func(r *Rule, _ *epg.Program) { r.Search.ChannelIDs = []int64{11} }, false},
		{"broadcast type miss", func(r *Rule, _ *epg.Program) {
			r.Search.BroadcastTypes = []epg.BroadcastType{epg.BroadcastBS}
		}, false},
		{"free only on pay program", func(r *Rule, p *epg.Program) {
			r.Search.FreeOnly = true
			p.IsFree = false
		}, false},
		{"genre any sub", func(r *Rule, p *epg.Program) {
			r.Search.Genres = []epg.Genre{{Lv1: 3, Lv2: -1}}
			p.Genres = []epg.Genre{{Lv1: 3, Lv2: 4}}
		}, true},
		{"genre sub mismatch", func(r *Rule, p *epg.Program) {
			r.Search.Genres = []epg.Genre{{Lv1: 3, Lv2: 1}}
			p.Genres = []epg.Genre{{Lv1: 3, Lv2: 4}}
		}, false},
		{"too short", func(r *Rule, _ *epg.Program) { r.Search.DurationMinSec = 7200 }, false},
		{"too long", func(r *Rule, _ *epg.Program) { r.Search.DurationMaxSec = 1800 }, false},
		{"inside period", func(r *Rule, p *epg.Program) {
			r.Search.Periods = []Period{{StartAt: p.StartAt.Add(-time.Hour), EndAt: p.StartAt.Add(time.Hour)}}
		}, true},
		{"outside period", func(r *Rule, p *epg.Program) {
			r.Search.Periods = []Period{{StartAt: p.EndAt, EndAt: p.EndAt.Add(time.Hour)}}
		}, false},
		{"weekday window", func(r *Rule, _ *epg.Program) {
			r.Search.Times = []TimeWindow{{Days: []int{1}, Window: "18:00-20:00"}}
		}, true},
		{"wrong weekday", func(r *Rule, _ *epg.Program) {
			r.Search.Times = []TimeWindow{{Days: []int{2}}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, p := base(), program("Show")
			tt.mutate(r, p)
			res := r.Matches(p, time.UTC)
			assert.Equal(t, tt.want, res.Matched, res.Reasons)
		})
	}
}

func TestTimeWindowCrossingMidnightBelongsToStartDay(t *testing.T) {
	tw := TimeWindow{Days: []int{1}, Window: "23:00-02:00"} // Monday night

	tuesdayEarly := time.Date(2025, 1, 7, 1, 0, 0, 0, time.UTC)
	ok, err := tw.contains(tuesdayEarly)
	require.NoError(t, err)
	assert.True(t, ok)

	mondayEarly := time.Date(2025, 1, 6, 1, 0, 0, 0, time.UTC)
	ok, err = tw.contains(mondayEarly)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		ok   bool
	}{
		{"keyword rule", Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "x"}}}, true},
		{"nothing to search", Rule{}, false},
		{"bad regex", Rule{Search: SearchOption{Keyword: TextQuery{Keyword: "(", Regex: true}}}, false},
		{"bad day", Rule{Search: SearchOption{ChannelIDs: []int64{1}, Times: []TimeWindow{{Days: []int{7}}}}}, false},
		{"inverted duration", Rule{Search: SearchOption{ChannelIDs: []int64{1}, DurationMinSec: 60, DurationMaxSec: 30}}, false},
		{"too many encodes", Rule{
			Search: SearchOption{ChannelIDs: []int64{1}},
			Encode: &EncodeOption{Modes: []EncodeMode{{Mode: "a"}, {Mode: "b"}, {Mode: "c"}, {Mode: "d"}}},
		}, false},
		{"time spec", Rule{
			Name:                "Late show",
			IsTimeSpecification: true,
			Search:              SearchOption{ChannelIDs: []int64{1}, Times: []TimeWindow{{Window: "23:00-00:30"}}},
		}, true},
		{"time spec two channels", Rule{
			Name:                "x",
			IsTimeSpecification: true,
			Search:              SearchOption{ChannelIDs: []int64{1, 2}, Times: []TimeWindow{{Window: "23:00-00:30"}}},
		}, false},
		{"time spec without window", Rule{
			Name:                "x",
			IsTimeSpecification: true,
			Search:              SearchOption{ChannelIDs: []int64{1}, Times: []TimeWindow{{Days: []int{1}}}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRuleOption)
			}
		})
	}
}
