// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSqliteStore(t *testing.T) *SqliteStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "epg.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSqliteStore(db)
	require.NoError(t, err)
	return s
}

func TestSqliteStore_ProgramsWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestSqliteStore(t)
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutChannels(ctx, Channel{ID: 1, NetworkID: 10, BroadcastType: BroadcastGR, Name: "A"}))
	require.NoError(t, s.PutPrograms(ctx,
		Program{ID: 1, ChannelID: 1, NetworkID: 10, BroadcastType: BroadcastGR, StartAt: base, EndAt: base.Add(time.Hour), Name: "News", Genres: []Genre{{Lv1: 0, Lv2: 1}}, IsFree: true},
		Program{ID: 2, ChannelID: 1, NetworkID: 10, BroadcastType: BroadcastGR, StartAt: base.Add(3 * time.Hour), EndAt: base.Add(4 * time.Hour), Name: "Late"},
	))

	got, err := s.Programs(ctx, base.Add(30*time.Minute), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "News", got[0].Name)
	assert.Equal(t, []Genre{{Lv1: 0, Lv2: 1}}, got[0].Genres)
	assert.True(t, got[0].StartAt.Equal(base))
	assert.True(t, got[0].IsFree)

	ch, err := s.Channel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), ch.NetworkID)

	_, err = s.Program(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ProgramsSorted(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	s.PutPrograms(
		Program{ID: 2, ChannelID: 2, StartAt: base, EndAt: base.Add(time.Hour)},
		Program{ID: 1, ChannelID: 1, StartAt: base, EndAt: base.Add(time.Hour)},
		Program{ID: 3, ChannelID: 1, StartAt: base.Add(-time.Hour), EndAt: base},
	)

	got, err := s.Programs(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}
