// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg exposes the read side of the program guide: channels and
// immutable program records used to derive reservations.
package epg

import (
	"context"
	"errors"
	"time"
)

// BroadcastType groups channels by the tuner hardware able to receive them.
type BroadcastType string

const (
	BroadcastGR  BroadcastType = "GR"
	BroadcastBS  BroadcastType = "BS"
	BroadcastCS  BroadcastType = "CS"
	BroadcastSKY BroadcastType = "SKY"
)

// Valid reports whether t is a known broadcast type.
func (t BroadcastType) Valid() bool {
	switch t {
	case BroadcastGR, BroadcastBS, BroadcastCS, BroadcastSKY:
		return true
	}
	return false
}

var ErrNotFound = errors.New("epg: not found")

// Genre is an ARIB-style two level genre. Lv2 < 0 means "any sub genre" when
// used as a filter.
type Genre struct {
	Lv1 int `json:"lv1"`
	Lv2 int `json:"lv2"`
}

// Channel is a receivable service. NetworkID identifies the transport stream:
// all channels sharing it are demodulated by a single tuner.
type Channel struct {
	ID            int64         `json:"id"`
	NetworkID     int64         `json:"networkId"`
	ServiceID     int64         `json:"serviceId"`
	BroadcastType BroadcastType `json:"broadcastType"`
	Name          string        `json:"name"`
}

// Program is one guide entry. Programs are never mutated by the scheduler.
type Program struct {
	ID            int64         `json:"id"`
	ChannelID     int64         `json:"channelId"`
	NetworkID     int64         `json:"networkId"`
	BroadcastType BroadcastType `json:"broadcastType"`
	StartAt       time.Time     `json:"startAt"`
	EndAt         time.Time     `json:"endAt"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Extended      string        `json:"extended,omitempty"`
	Genres        []Genre       `json:"genres,omitempty"`
	IsFree        bool          `json:"isFree"`
}

// Duration returns the scheduled length of the program.
func (p Program) Duration() time.Duration {
	return p.EndAt.Sub(p.StartAt)
}

// Store is the read-only program database.
type Store interface {
	// Programs returns programs overlapping [from, to), ordered by start time.
	Programs(ctx context.Context, from, to time.Time) ([]Program, error)
	Program(ctx context.Context, id int64) (Program, error)
	Channel(ctx context.Context, id int64) (Channel, error)
}
