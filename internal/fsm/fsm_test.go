// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func lightTable(t *testing.T, guard func(context.Context, state, event) error) *Table[state, event] {
	t.Helper()
	tbl, err := NewTable([]Transition[state, event]{
		{From: "off", Event: "power", To: "on", Guard: guard},
		{From: "on", Event: "power", To: "off"},
		{From: "on", Event: "break", To: "broken"},
	})
	require.NoError(t, err)
	return tbl
}

func TestMachineFire(t *testing.T) {
	m := New[state, event]("off", lightTable(t, nil))

	to, err := m.Fire(context.Background(), "power")
	require.NoError(t, err)
	assert.Equal(t, state("on"), to)
	assert.True(t, m.Can("break"))

	_, err = m.Fire(context.Background(), "break")
	require.NoError(t, err)
	assert.True(t, m.Done())

	_, err = m.Fire(context.Background(), "power")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("broken"), m.State())
}

func TestMachineGuardRejects(t *testing.T) {
	denied := errors.New("denied")
	m := New[state, event]("off", lightTable(t, func(context.Context, state, event) error { return denied }))

	_, err := m.Fire(context.Background(), "power")
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, state("off"), m.State())
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	assert.Error(t, err)
}

func TestTerminalStates(t *testing.T) {
	tbl := lightTable(t, nil)
	assert.True(t, tbl.IsTerminal("broken"))
	assert.False(t, tbl.IsTerminal("on"))
	assert.False(t, tbl.IsTerminal("off"))
}
