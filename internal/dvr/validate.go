// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidRuleOption = errors.New("invalid rule option")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRuleOption, fmt.Sprintf(format, args...))
}

// Validate rejects rules whose predicates are inconsistent. It never mutates r.
func (r *Rule) Validate() error {
	s := r.Search

	if r.IsTimeSpecification {
		if len(s.ChannelIDs) != 1 {
			return invalid("time specification needs exactly one channel, got %d", len(s.ChannelIDs))
		}
		if len(s.Times) == 0 {
			return invalid("time specification needs at least one time window")
		}
		for i, tw := range s.Times {
			if strings.TrimSpace(tw.Window) == "" {
				return invalid("times[%d]: window is required for time specification", i)
			}
		}
		if r.DisplayName() == "" {
			return invalid("time specification needs a name or keyword")
		}
	} else if s.Keyword.Keyword == "" && len(s.ChannelIDs) == 0 && len(s.Genres) == 0 {
		return invalid("search needs a keyword, channel or genre")
	}

	for _, q := range []struct {
		field string
		query TextQuery
	}{{"keyword", s.Keyword}, {"ignore", s.Ignore}} {
		if q.query.Regex && q.query.Keyword != "" {
			if _, err := regexp.Compile(q.query.Keyword); err != nil {
				return invalid("%s: %v", q.field, err)
			}
		}
	}

	for i, tw := range s.Times {
		for _, d := range tw.Days {
			if d < 0 || d > 6 {
				return invalid("times[%d]: day %d out of range 0..6", i, d)
			}
		}
		if tw.Window != "" {
			start, end, err := parseWindow(tw.Window)
			if err != nil {
				return invalid("times[%d]: %v", i, err)
			}
			if start == end {
				return invalid("times[%d]: empty window %q", i, tw.Window)
			}
		}
	}

	for _, t := range s.BroadcastTypes {
		if !t.Valid() {
			return invalid("unknown broadcast type %q", t)
		}
	}
	if s.DurationMinSec < 0 || s.DurationMaxSec < 0 {
		return invalid("duration bounds must not be negative")
	}
	if s.DurationMinSec > 0 && s.DurationMaxSec > 0 && s.DurationMinSec > s.DurationMaxSec {
		return invalid("durationMin %d exceeds durationMax %d", s.DurationMinSec, s.DurationMaxSec)
	}
	for i, p := range s.Periods {
		if !p.StartAt.Before(p.EndAt) {
			return invalid("searchPeriods[%d]: start must be before end", i)
		}
	}

	if r.Reserve.PeriodToAvoidDuplicate < 0 {
		return invalid("periodToAvoidDuplicate must not be negative")
	}
	return ValidateEncode(r.Encode)
}

// ValidateEncode checks encode directives shared by rules and manual reservations.
func ValidateEncode(o *EncodeOption) error {
	if o == nil {
		return nil
	}
	if len(o.Modes) > MaxEncodeModes {
		return invalid("at most %d encode modes, got %d", MaxEncodeModes, len(o.Modes))
	}
	for i, m := range o.Modes {
		if strings.TrimSpace(m.Mode) == "" {
			return invalid("encode.modes[%d]: mode is required", i)
		}
	}
	return nil
}
