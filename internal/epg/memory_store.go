// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and by deployments that
// push guide data from another process.
type MemoryStore struct {
	mu       sync.RWMutex
	programs map[int64]Program
	channels map[int64]Channel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		programs: make(map[int64]Program),
		channels: make(map[int64]Channel),
	}
}

// PutChannels inserts or replaces channels.
func (s *MemoryStore) PutChannels(chs ...Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chs {
		s.channels[c.ID] = c
	}
}

// PutPrograms inserts or replaces programs.
func (s *MemoryStore) PutPrograms(ps ...Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.programs[p.ID] = p
	}
}

// DeleteProgram removes a program, as an EPG refresh would.
func (s *MemoryStore) DeleteProgram(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.programs, id)
}

func (s *MemoryStore) Programs(_ context.Context, from, to time.Time) ([]Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Program
	for _, p := range s.programs {
		if p.EndAt.After(from) && p.StartAt.Before(to) {
			out = append(out, p)
		}
	}
	sortPrograms(out)
	return out, nil
}

func (s *MemoryStore) Program(_ context.Context, id int64) (Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return Program{}, fmt.Errorf("%w: program %d", ErrNotFound, id)
	}
	return p, nil
}

func (s *MemoryStore) Channel(_ context.Context, id int64) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return Channel{}, fmt.Errorf("%w: channel %d", ErrNotFound, id)
	}
	return c, nil
}

func sortPrograms(ps []Program) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].StartAt.Equal(ps[j].StartAt) {
			return ps[i].StartAt.Before(ps[j].StartAt)
		}
		if ps[i].ChannelID != ps[j].ChannelID {
			return ps[i].ChannelID < ps[j].ChannelID
		}
		return ps[i].ID < ps[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
