// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorded

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
)

var base = time.Date(2025, 3, 3, 21, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *SqliteStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "recorded.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewSqliteStore(db)
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	return s
}

func TestSqliteStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.CreateRecorded(ctx, Recorded{
		ReserveID: 7, RuleID: 2, ProgramID: 100, ChannelID: 10, Name: "Show X",
		StartAt: base, EndAt: base.Add(time.Hour), DropCount: 3, Tags: []int64{5, 1},
	}, VideoFile{Name: "TS", Path: "/rec/show.m2ts", Size: 1024})
	require.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Show X", rec.Name)
	assert.Equal(t, int64(3), rec.DropCount)
	assert.False(t, rec.IsFailed)
	assert.True(t, rec.StartAt.Equal(base))
	assert.Equal(t, []int64{1, 5}, rec.Tags)
	require.Len(t, rec.VideoFiles, 1)
	assert.Equal(t, FileTS, rec.VideoFiles[0].Type)
	assert.Equal(t, "/rec/show.m2ts", rec.VideoFiles[0].Path)

	fileID, err := s.AppendVideoFile(ctx, id, VideoFile{Type: FileEncoded, Name: "H.264", Path: "/enc/show.mp4"})
	require.NoError(t, err)
	assert.Greater(t, fileID, rec.VideoFiles[0].ID)
	require.NoError(t, s.AddTags(ctx, id, []int64{5, 9}))

	rec, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rec.VideoFiles, 2)
	assert.Equal(t, []int64{1, 5, 9}, rec.Tags)
}

func TestSqliteStore_UnknownItem(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.AppendVideoFile(ctx, 42, VideoFile{Path: "/x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.AddTags(ctx, 42, []int64{1}), ErrNotFound)
}

func TestSqliteStore_History(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.CreateRecorded(ctx, Recorded{ChannelID: 10, Name: "Show X", StartAt: base, EndAt: base.Add(time.Hour)}, VideoFile{})
	require.NoError(t, err)
	_, err = s.CreateRecorded(ctx, Recorded{ChannelID: 10, Name: "Broken", StartAt: base, EndAt: base.Add(time.Hour), IsFailed: true}, VideoFile{Path: "/rec/broken.m2ts"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		title   string
		channel int64
		since   time.Time
		want    bool
	}{
		{"within period", "Show X", 10, base.AddDate(0, 0, -30), true},
		{"whole history", "Show X", 10, time.Time{}, true},
		{"ended before period", "Show X", 10, base.Add(2 * time.Hour), false},
		{"other channel", "Show X", 20, time.Time{}, false},
		{"failed recordings do not count", "Broken", 10, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasRecentRecording(ctx, tt.title, tt.channel, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSqliteStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := range 3 {
		_, err := s.CreateRecorded(ctx, Recorded{ChannelID: 10, Name: "P", StartAt: base.Add(time.Duration(i) * time.Hour), EndAt: base.Add(time.Duration(i+1) * time.Hour)}, VideoFile{})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartAt.After(all[1].StartAt))

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)
}

func TestSqliteStore_VideoFileLookupAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.CreateRecorded(ctx, Recorded{ChannelID: 10, Name: "P", StartAt: base, EndAt: base.Add(time.Hour)},
		VideoFile{Name: "TS", Path: "/rec/p.m2ts", Size: 10})
	require.NoError(t, err)
	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	fileID := rec.VideoFiles[0].ID

	f, err := s.VideoFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, id, f.RecordedID)
	assert.Equal(t, "/rec/p.m2ts", f.Path)

	require.NoError(t, s.DeleteVideoFile(ctx, fileID))
	_, err = s.VideoFile(ctx, fileID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteVideoFile(ctx, fileID), ErrNotFound)
}
