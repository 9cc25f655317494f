// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHolder(t *testing.T) (*Holder, string, string) {
	t.Helper()
	path, dataDir := sampleConfig(t)
	loader := NewLoader(path, "")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewHolder(cfg, loader), path, dataDir
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	h, path, dataDir := newHolder(t)
	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("dataDir: %s\ntuners:\n  - name: gr9\n    types: [GR]\n    command: cat\n", dataDir)), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	got := <-ch
	require.Len(t, got.Tuners, 1)
	assert.Equal(t, "gr9", got.Tuners[0].Name)
	assert.Equal(t, "gr9", h.Get().Tuners[0].Name)
}

func TestHolder_InvalidReloadKeepsPrevious(t *testing.T) {
	h, path, _ := newHolder(t)
	before := h.Get()

	require.NoError(t, os.WriteFile(path, []byte("api:\n  listenAddr: nonsense\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, before.API.ListenAddr, h.Get().API.ListenAddr)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	h, _, _ := newHolder(t)
	ch := make(chan Config)
	h.RegisterListener(ch)
	assert.NoError(t, h.Reload(context.Background()))
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	h, path, dataDir := newHolder(t)
	ch := make(chan Config, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("dataDir: %s\nlogLevel: warn\n", dataDir)), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, "warn", cfg.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	loader := NewLoader("", "")
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(cfg, loader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.Watch(ctx))
}

func TestTunersChanged(t *testing.T) {
	a := validConfig(t)
	b := a.Clone()
	assert.False(t, TunersChanged(a, b))
	b.Tuners[0].Command = "other"
	assert.True(t, TunersChanged(a, b))
}
