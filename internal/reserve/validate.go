// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"strings"
	"time"

	"github.com/ManuGH/pvrd/internal/dvr"
)

// Options are the user-editable directives of a manual reservation.
type Options struct {
	AllowEndLack bool              `json:"allowEndLack"`
	Save         dvr.SaveOption    `json:"save"`
	Encode       *dvr.EncodeOption `json:"encode,omitempty"`
	Tags         []int64           `json:"tags,omitempty"`
}

// ManualRequest creates a manual reservation for either a program or a raw
// time slot.
type ManualRequest struct {
	ProgramID int64     `json:"programId,omitempty"`
	TimeSpec  *TimeSpec `json:"timeSpec,omitempty"`
	Options
}

func (o *Options) validate() error {
	if err := dvr.ValidateEncode(o.Encode); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (req *ManualRequest) validate(now time.Time) error {
	hasProgram := req.ProgramID > 0
	hasTime := req.TimeSpec != nil
	if hasProgram == hasTime {
		return invalid("exactly one of programId and timeSpec is required")
	}
	if hasTime {
		ts := req.TimeSpec
		if ts.ChannelID <= 0 {
			return invalid("timeSpec.channelId is required")
		}
		if !ts.StartAt.Before(ts.EndAt) {
			return invalid("timeSpec start must be before end")
		}
		if !ts.EndAt.After(now) {
			return invalid("timeSpec already ended")
		}
		if strings.TrimSpace(ts.Name) == "" {
			return invalid("timeSpec.name is required")
		}
	}
	return req.Options.validate()
}
