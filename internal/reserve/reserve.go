// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reserve owns the reservation set: it turns rules and manual requests
// into a conflict-free schedule against the tuner pool and publishes every
// committed change.
package reserve

import (
	"fmt"
	"time"

	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/epg"
)

// NoTuner marks a reservation without a tuner assignment.
const NoTuner = -1

// Status is the classification a scheduler pass gives a reservation.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusConflict Status = "conflict"
	StatusSkip     Status = "skip"
	StatusOverlap  Status = "overlap"
)

// TimeSpec is a raw channel/time slot that is not bound to a program.
type TimeSpec struct {
	ChannelID int64     `json:"channelId"`
	StartAt   time.Time `json:"startAt"`
	EndAt     time.Time `json:"endAt"`
	Name      string    `json:"name"`
}

// Reserve is one reservation. Exactly one of ProgramID and TimeSpec is set.
// The slot fields are resolved from the program or time spec on every pass.
type Reserve struct {
	ID        int64     `json:"id"`
	RuleID    int64     `json:"ruleId,omitempty"` // 0 for manual reservations
	ProgramID int64     `json:"programId,omitempty"`
	TimeSpec  *TimeSpec `json:"timeSpec,omitempty"`

	ChannelID     int64             `json:"channelId"`
	NetworkID     int64             `json:"networkId"`
	BroadcastType epg.BroadcastType `json:"broadcastType"`
	Name          string            `json:"name"`
	StartAt       time.Time         `json:"startAt"`
	EndAt         time.Time         `json:"endAt"`

	IsSkip       bool `json:"isSkip"`
	IsConflict   bool `json:"isConflict"`
	IsOverlap    bool `json:"isOverlap"`
	AllowEndLack bool `json:"allowEndLack"`

	// UserSkip is an explicit skip of a rule-derived reservation.
	UserSkip bool `json:"userSkip,omitempty"`
	// SkipReleased bypasses duplicate avoidance.
	SkipReleased bool `json:"skipReleased,omitempty"`
	// OverlapReleased keeps the reservation out of overlap grouping.
	OverlapReleased bool `json:"overlapReleased,omitempty"`

	Save   dvr.SaveOption    `json:"save"`
	Encode *dvr.EncodeOption `json:"encode,omitempty"`
	Tags   []int64           `json:"tags,omitempty"`

	TunerID int `json:"tunerId"`
	// RecordEndAt is set when the tail is given up to a later reservation.
	RecordEndAt time.Time `json:"recordEndAt,omitzero"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *Reserve) IsManual() bool { return r.RuleID == 0 }

func (r *Reserve) IsTimeSpecified() bool { return r.TimeSpec != nil }

// Status derives the single classification of r.
func (r *Reserve) Status() Status {
	switch {
	case r.IsSkip:
		return StatusSkip
	case r.IsOverlap:
		return StatusOverlap
	case r.IsConflict:
		return StatusConflict
	default:
		return StatusNormal
	}
}

// RecordEnd is when recording stops: the truncated end if the tail was given
// up, otherwise the slot end.
func (r *Reserve) RecordEnd() time.Time {
	if !r.RecordEndAt.IsZero() && r.RecordEndAt.Before(r.EndAt) {
		return r.RecordEndAt
	}
	return r.EndAt
}

// Clone returns a deep copy.
func (r Reserve) Clone() Reserve {
	if r.TimeSpec != nil {
		ts := *r.TimeSpec
		r.TimeSpec = &ts
	}
	r.Encode = r.Encode.Clone()
	if r.Tags != nil {
		r.Tags = append([]int64(nil), r.Tags...)
	}
	return r
}

// identityKey matches rule-derived reservations across passes so that their
// ids and user overrides survive recomputation.
func identityKey(ruleID, programID, channelID int64, start time.Time) string {
	if programID != 0 {
		return fmt.Sprintf("r%d/p%d", ruleID, programID)
	}
	return fmt.Sprintf("r%d/c%d/%d", ruleID, channelID, start.UnixMilli())
}

func (r *Reserve) identityKey() string {
	return identityKey(r.RuleID, r.ProgramID, r.ChannelID, r.StartAt)
}

// Counts tallies reservations per classification.
type Counts struct {
	Normal   int `json:"normal"`
	Conflict int `json:"conflict"`
	Skip     int `json:"skip"`
	Overlap  int `json:"overlap"`
}

func (c *Counts) add(s Status) {
	switch s {
	case StatusNormal:
		c.Normal++
	case StatusConflict:
		c.Conflict++
	case StatusSkip:
		c.Skip++
	case StatusOverlap:
		c.Overlap++
	}
}

// CountOf tallies rs.
func CountOf(rs []Reserve) Counts {
	var c Counts
	for i := range rs {
		c.add(rs[i].Status())
	}
	return c
}
