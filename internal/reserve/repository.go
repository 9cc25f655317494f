// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Meta is store bookkeeping persisted next to the reservations.
type Meta struct {
	// LastID is the highest id ever handed out; ids are never reused.
	LastID int64
	// Dismissed holds identity keys of rule-derived reservations removed by
	// the recording engine, each until the slot ends.
	Dismissed map[string]time.Time
}

func (m Meta) clone() Meta {
	return Meta{LastID: m.LastID, Dismissed: maps.Clone(m.Dismissed)}
}

// State is everything the store needs to resume after a restart.
type State struct {
	Reserves []Reserve
	Meta     Meta
}

// Repository persists committed passes. Apply must be atomic.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Apply(ctx context.Context, d Diff, meta Meta) error
}

// MemoryRepository keeps state in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	reserves map[int64]Reserve
	meta     Meta
	// FailApply, when set, is returned by the next Apply.
	FailApply error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reserves: make(map[int64]Reserve)}
}

func (m *MemoryRepository) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{Meta: m.meta.clone()}
	for _, r := range m.reserves {
		st.Reserves = append(st.Reserves, r.Clone())
	}
	return st, nil
}

func (m *MemoryRepository) Apply(_ context.Context, d Diff, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailApply; err != nil {
		m.FailApply = nil
		return err
	}
	for _, r := range d.Deleted {
		delete(m.reserves, r.ID)
	}
	for _, r := range d.Inserted {
		m.reserves[r.ID] = r.Clone()
	}
	for _, r := range d.Updated {
		m.reserves[r.ID] = r.Clone()
	}
	m.meta = meta.clone()
	return nil
}
