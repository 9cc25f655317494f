// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
)

// Rule is a saved search that continuously generates candidate reservations.
// Rule ids increase with creation order; a lower id wins overlap tie-breaks.
type Rule struct {
	ID                  int64         `json:"id"`
	Name                string        `json:"name,omitempty"`
	Enabled             bool          `json:"enabled"`
	IsTimeSpecification bool          `json:"isTimeSpecification"`
	Search              SearchOption  `json:"search"`
	Reserve             ReserveOption `json:"reserve"`
	Save                SaveOption    `json:"save"`
	Encode              *EncodeOption `json:"encode,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// TextQuery is a keyword predicate over program text fields. When no target
// field is selected the program name is searched.
type TextQuery struct {
	Keyword       string `json:"keyword,omitempty"`
	CaseSensitive bool   `json:"cs,omitempty"`
	Regex         bool   `json:"regex,omitempty"`
	Name          bool   `json:"name,omitempty"`
	Description   bool   `json:"description,omitempty"`
	Extended      bool   `json:"extended,omitempty"`
}

// TimeWindow restricts matches to weekdays (0=Sunday, empty = every day) and a
// time-of-day range "HH:MM-HH:MM" (empty = all day). Ranges may cross midnight.
// For time-specification rules each occurrence of the window is a recording.
type TimeWindow struct {
	Days   []int  `json:"days,omitempty"`
	Window string `json:"window,omitempty"`
}

// Period is a half-open date range [StartAt, EndAt).
type Period struct {
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

// SearchOption holds the conjunctive search predicates of a rule.
type SearchOption struct {
	Keyword        TextQuery           `json:"keyword"`
	Ignore         TextQuery           `json:"ignore"`
	ChannelIDs     []int64             `json:"channelIds,omitempty"`
	BroadcastTypes []epg.BroadcastType `json:"broadcastTypes,omitempty"`
	Genres         []epg.Genre         `json:"genres,omitempty"`
	Times          []TimeWindow        `json:"times,omitempty"`
	FreeOnly       bool                `json:"freeOnly,omitempty"`
	DurationMinSec int                 `json:"durationMin,omitempty"`
	DurationMaxSec int                 `json:"durationMax,omitempty"`
	Periods        []Period            `json:"searchPeriods,omitempty"`
}

// ReserveOption controls how candidates of the rule are reserved.
type ReserveOption struct {
	AllowEndLack           bool    `json:"allowEndLack"`
	AvoidDuplicate         bool    `json:"avoidDuplicate"`
	PeriodToAvoidDuplicate int     `json:"periodToAvoidDuplicate,omitempty"` // days
	Tags                   []int64 `json:"tags,omitempty"`
}

// SaveOption places the recorded file.
type SaveOption struct {
	ParentDir      string `json:"parentDir,omitempty"`
	Directory      string `json:"directory,omitempty"`
	RecordedFormat string `json:"recordedFormat,omitempty"`
}

// MaxEncodeModes is the number of encode directives a reservation may carry.
const MaxEncodeModes = 3

// EncodeMode is one encode directive pushed after the recording completes.
type EncodeMode struct {
	Mode      string `json:"mode"`
	ParentDir string `json:"parentDir,omitempty"`
	Directory string `json:"directory,omitempty"`
}

// EncodeOption lists up to MaxEncodeModes encode directives.
type EncodeOption struct {
	Modes          []EncodeMode `json:"modes"`
	RemoveOriginal bool         `json:"removeOriginal,omitempty"`
}

// Clone returns a deep copy of o.
func (o *EncodeOption) Clone() *EncodeOption {
	if o == nil {
		return nil
	}
	c := *o
	c.Modes = append([]EncodeMode(nil), o.Modes...)
	return &c
}

// DisplayName is the name given to time-specified reservations of the rule.
func (r *Rule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Search.Keyword.Keyword
}
