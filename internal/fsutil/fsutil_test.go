// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	got, err := ConfineRelPath(root, "anime/2025")
	require.NoError(t, err)
	realRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, filepath.Join(realRoot, "anime", "2025"), got)

	got, err = ConfineRelPath(root, "")
	require.NoError(t, err)
	assert.Equal(t, realRoot, got)

	for _, bad := range []string{"../x", "/etc", "a\\b", "escape/file", "a/../../x"} {
		_, err := ConfineRelPath(root, bad)
		assert.Error(t, err, bad)
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "News／Weather", SanitizeName("News/Weather"))
	assert.Equal(t, "untitled", SanitizeName(" .. "))
	long := SanitizeName(strings.Repeat("あ", 100))
	assert.LessOrEqual(t, len(long), maxNameBytes)
	assert.True(t, strings.HasPrefix(long, "あ"))
	assert.Equal(t, 0, len(long)%len("あ"), "cut on a rune boundary")
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p, err := UniquePath(dir, "show", ".m2ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "show.m2ts"), p)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	p, err = UniquePath(dir, "show", ".m2ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "show(1).m2ts"), p)
}
