// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/reserve"
)

func TestFileName(t *testing.T) {
	r := &reserve.Reserve{
		ChannelID: 1024,
		Name:      "News/Weather: Tonight?",
		StartAt:   time.Date(2025, 4, 1, 1, 5, 0, 0, time.UTC),
	}
	jst := time.FixedZone("JST", 9*3600)

	tests := []struct {
		name   string
		format string
		loc    *time.Location
		want   string
	}{
		{"default format", "", time.UTC, "202504010105-News／Weather： Tonight？"},
		{"local time", "%YEAR%-%MONTH%-%DAY% %HOUR%.%MIN%", jst, "2025-04-01 10.05"},
		{"channel id", "%CHID%_%TITLE%", time.UTC, "1024_News／Weather： Tonight？"},
		{"format cannot add directories", "a/%TITLE%", time.UTC, "a／News／Weather： Tonight？"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.format, r, tt.loc))
		})
	}
}

func TestOutputDir(t *testing.T) {
	root := t.TempDir()
	r := &reserve.Reserve{Save: dvr.SaveOption{ParentDir: "tv", Directory: "anime"}}
	dir, err := outputDir(root, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("tv", "anime"), mustRel(t, root, dir))

	_, err = outputDir(root, &reserve.Reserve{Save: dvr.SaveOption{Directory: "../../etc"}})
	assert.Error(t, err)
}

func mustRel(t *testing.T, root, p string) string {
	t.Helper()
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	rel, err := filepath.Rel(realRoot, p)
	require.NoError(t, err)
	return rel
}
