// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small strict state machine: transitions not listed in the
// table are errors.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the FSM.
// Guard may reject the transition; Action performs side-effects.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Table is a validated, immutable transition set shared by many machines.
type Table[S ~string, E ~string] struct {
	index    map[string]Transition[S, E]
	terminal map[S]bool
}

// NewTable indexes transitions. States without outgoing edges are terminal.
func NewTable[S ~string, E ~string](transitions []Transition[S, E]) (*Table[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	states := make(map[S]bool)
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
		states[t.From] = true
		if _, seen := states[t.To]; !seen {
			states[t.To] = false
		}
	}
	terminal := make(map[S]bool)
	for s, hasOut := range states {
		if !hasOut {
			terminal[s] = true
		}
	}
	return &Table[S, E]{index: idx, terminal: terminal}, nil
}

// MustTable is NewTable for package-level tables.
func MustTable[S ~string, E ~string](transitions []Transition[S, E]) *Table[S, E] {
	t, err := NewTable(transitions)
	if err != nil {
		panic(err)
	}
	return t
}

// IsTerminal reports whether s has no outgoing transitions.
func (t *Table[S, E]) IsTerminal(s S) bool { return t.terminal[s] }

// Machine tracks the state of one entity against a Table.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	table *Table[S, E]
}

func New[S ~string, E ~string](initial S, table *Table[S, E]) *Machine[S, E] {
	return &Machine[S, E]{state: initial, table: table}
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event is allowed in the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table.index[key(m.state, event)]
	return ok
}

// Done reports whether the machine reached a terminal state.
func (m *Machine[S, E]) Done() bool {
	return m.table.IsTerminal(m.State())
}

// Fire attempts to apply an event atomically.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.table.index[key(from, event)]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}

	// Guard + Action are executed outside the critical section.
	to := t.To
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = to
	m.mu.Unlock()

	return to, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
