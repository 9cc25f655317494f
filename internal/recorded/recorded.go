// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recorded persists finished recordings, their video files and the
// recording history used for duplicate avoidance.
package recorded

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("recorded item not found")

// FileType distinguishes the original stream from encoder output.
type FileType string

const (
	FileTS      FileType = "ts"
	FileEncoded FileType = "encoded"
)

type VideoFile struct {
	ID         int64     `json:"id"`
	RecordedID int64     `json:"recordedId"`
	Type       FileType  `json:"type"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorded is the result of one recording session. Failed items keep their
// partial file.
type Recorded struct {
	ID         int64       `json:"id"`
	ReserveID  int64       `json:"reserveId"`
	RuleID     int64       `json:"ruleId,omitempty"`
	ProgramID  int64       `json:"programId,omitempty"`
	ChannelID  int64       `json:"channelId"`
	Name       string      `json:"name"`
	StartAt    time.Time   `json:"startAt"`
	EndAt      time.Time   `json:"endAt"`
	DropCount  int64       `json:"dropCount"`
	ErrorCount int64       `json:"errorCount"`
	IsFailed   bool        `json:"isFailed"`
	Tags       []int64     `json:"tags,omitempty"`
	VideoFiles []VideoFile `json:"videoFiles,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}
