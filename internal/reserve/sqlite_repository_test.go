// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
)

func newSqliteRepo(t *testing.T) (*SqliteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reserves.db")
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo, err := NewSqliteRepository(db)
	require.NoError(t, err)
	return repo, path
}

func TestSqliteRepository_ApplyAndLoad(t *testing.T) {
	ctx := context.Background()
	repo, path := newSqliteRepo(t)

	st, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Reserves)
	assert.Zero(t, st.Meta.LastID)

	manual := res(1, 0, 10, 1, at(10, 0), at(11, 0))
	manual.TunerID = 0
	manual.Encode = &dvr.EncodeOption{Modes: []dvr.EncodeMode{{Mode: "h264"}}}
	manual.Tags = []int64{3}
	ruled := res(2, 5, 20, 2, at(12, 0), at(13, 0))
	ruled.IsSkip = true
	ruled.UserSkip = true
	timed := res(3, 0, 20, 2, at(14, 0), at(15, 0))
	timed.ProgramID = 0
	timed.TimeSpec = &TimeSpec{ChannelID: 20, StartAt: at(14, 0), EndAt: at(15, 0), Name: "Slot"}
	timed.RecordEndAt = at(14, 45)

	meta := Meta{LastID: 3, Dismissed: map[string]time.Time{"r5/p900": at(18, 0)}}
	require.NoError(t, repo.Apply(ctx, Diff{Inserted: []Reserve{manual, ruled, timed}}, meta))

	st, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]Reserve{manual, ruled, timed}, st.Reserves))
	assert.Equal(t, int64(3), st.Meta.LastID)
	require.Contains(t, st.Meta.Dismissed, "r5/p900")
	assert.True(t, st.Meta.Dismissed["r5/p900"].Equal(at(18, 0)))

	// Update one, delete another, drop the tombstone.
	ruled.UserSkip = false
	ruled.IsSkip = false
	ruled.TunerID = 0
	require.NoError(t, repo.Apply(ctx, Diff{Updated: []Reserve{ruled}, Deleted: []Reserve{manual}}, Meta{LastID: 3}))

	// Reopen to make sure everything reached the file.
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	reopened, err := NewSqliteRepository(db)
	require.NoError(t, err)

	st, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]Reserve{ruled, timed}, st.Reserves))
	assert.Empty(t, st.Meta.Dismissed)
}

func TestSqliteRepository_BacksStore(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSqliteRepo(t)

	f := newFixture(t, 1)
	f.guide.PutPrograms(program(100, 10, 1, "P", at(10, 0), at(11, 0)))
	deps := f.store.deps
	deps.Repo = repo

	s, err := Open(ctx, Config{}, deps)
	require.NoError(t, err)
	id, err := s.AddManual(ctx, ManualRequest{ProgramID: 100})
	require.NoError(t, err)

	again, err := Open(ctx, Config{}, deps)
	require.NoError(t, err)
	r, err := again.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, r.Status())
	assert.Equal(t, 0, r.TunerID)
}
